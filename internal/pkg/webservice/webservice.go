package webservice

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/ohowland/holarchy/internal/pkg/environment"
	"github.com/ohowland/holarchy/internal/pkg/holon"
	"github.com/ohowland/holarchy/internal/pkg/registry"
	"github.com/ohowland/holarchy/internal/pkg/report"
	"github.com/ohowland/holarchy/internal/pkg/simulation"
	"github.com/ohowland/holarchy/internal/pkg/snapshot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config is the listen address of the service.
type Config struct {
	URL  string `json:"URL"`
	Port string `json:"Port"`
}

// NewConfig reads a JSON config file.
func NewConfig(configPath string) (Config, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// App exposes a simulation controller over HTTP. Store, Narrator and Gatherer
// are optional; their routes answer 503 when unset.
type App struct {
	Config   Config
	Sim      *simulation.Controller
	Store    snapshot.Store
	Narrator report.Narrator
	Gatherer prometheus.Gatherer
}

// Router builds the route table.
func (app *App) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", app.BaseHandler)
	r.HandleFunc("/state", app.StateHandler).Methods("GET")
	r.HandleFunc("/resilience", app.ResilienceHandler).Methods("GET")
	r.HandleFunc("/audit", app.AuditHandler).Methods("GET")
	r.HandleFunc("/totals", app.TotalsHandler).Methods("GET")
	r.HandleFunc("/report", app.ReportHandler).Methods("GET")

	r.HandleFunc("/simulation/{action:start|stop|step|reset|preset}", app.SimulationHandler).Methods("POST")
	r.HandleFunc("/simulation/speed", app.SpeedHandler).Methods("PUT")
	r.HandleFunc("/simulation/weather", app.WeatherHandler).Methods("PUT")

	r.HandleFunc("/holons", app.AddHolonHandler).Methods("POST")
	r.HandleFunc("/holons/{id}", app.HolonHandler).Methods("GET", "DELETE")
	r.HandleFunc("/holons/{id}/toggle", app.ToggleHandler).Methods("POST")
	r.HandleFunc("/holons/{id}/parent", app.ParentHandler).Methods("PUT")
	r.HandleFunc("/holons/{id}/whatif", app.WhatIfHandler).Methods("GET")

	r.HandleFunc("/snapshots", app.SnapshotsHandler).Methods("GET", "POST")
	r.HandleFunc("/snapshots/{id}", app.SnapshotHandler).Methods("DELETE")
	r.HandleFunc("/snapshots/{id}/load", app.LoadSnapshotHandler).Methods("POST")

	r.HandleFunc("/ws", app.StreamHandler)
	if app.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(app.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// NewServer returns an http.Server for app on its configured port.
func (app *App) NewServer() *http.Server {
	return &http.Server{
		Addr:              app.Config.URL + ":" + app.Config.Port,
		Handler:           app.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// BaseHandler answers liveness probes.
func (app *App) BaseHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("[Webservice] encode:", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrUnknownHolon), errors.Is(err, snapshot.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrProtectedNode):
		return http.StatusForbidden
	case errors.Is(err, registry.ErrDuplicateID), errors.Is(err, registry.ErrCycle):
		return http.StatusConflict
	case errors.Is(err, holon.ErrInvalidSpec), errors.Is(err, simulation.ErrInvalidSpeed),
		errors.Is(err, environment.ErrUnknownWeather), errors.Is(err, errMalformed):
		return http.StatusBadRequest
	case errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

var (
	errMalformed   = errors.New("malformed request")
	errUnavailable = errors.New("service not configured")
)

func decode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}
