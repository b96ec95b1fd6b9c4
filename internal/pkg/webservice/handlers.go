package webservice

import (
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/ohowland/holarchy/internal/pkg/environment"
	"github.com/ohowland/holarchy/internal/pkg/holon"
	"github.com/ohowland/holarchy/internal/pkg/report"
)

// StateHandler returns the full simulation state.
func (app *App) StateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.Sim.State())
}

// ResilienceHandler returns the resilience breakdown.
func (app *App) ResilienceHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.Sim.Assess())
}

// AuditHandler returns the audit log, most recent first.
func (app *App) AuditHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.Sim.AuditLog())
}

// TotalsHandler returns the latest system totals.
func (app *App) TotalsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.Sim.Totals())
}

// ReportHandler returns the summary payload and the narrator's report on it.
func (app *App) ReportHandler(w http.ResponseWriter, r *http.Request) {
	summary := app.Sim.Summary()
	resp := struct {
		Summary []report.HolonSummary `json:"summary"`
		Report  string                `json:"report,omitempty"`
	}{Summary: summary}
	if app.Narrator != nil {
		resp.Report = report.Generate(r.Context(), app.Narrator, summary)
	}
	writeJSON(w, http.StatusOK, resp)
}

// SimulationHandler runs the run-control actions.
func (app *App) SimulationHandler(w http.ResponseWriter, r *http.Request) {
	switch mux.Vars(r)["action"] {
	case "start":
		app.Sim.Start()
	case "stop":
		app.Sim.Stop()
	case "step":
		n := 1
		if q := r.URL.Query().Get("n"); q != "" {
			v, err := strconv.Atoi(q)
			if err != nil || v < 1 {
				writeError(w, fmt.Errorf("%w: n=%q", errMalformed, q))
				return
			}
			n = v
		}
		writeJSON(w, http.StatusOK, app.Sim.Advance(n))
		return
	case "reset":
		if err := app.Sim.Reset(); err != nil {
			writeError(w, err)
			return
		}
	case "preset":
		app.Sim.ApplyResearchPreset()
	}
	writeJSON(w, http.StatusOK, app.Sim.State())
}

// SpeedHandler sets the tick rate multiplier.
func (app *App) SpeedHandler(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Speed int `json:"speed"`
	}{}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := app.Sim.SetSpeed(req.Speed); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// WeatherHandler sets the weather condition.
func (app *App) WeatherHandler(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Weather environment.Weather `json:"weather"`
	}{}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := app.Sim.SetWeather(req.Weather); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// AddHolonHandler provisions a holon from a partial spec.
func (app *App) AddHolonHandler(w http.ResponseWriter, r *http.Request) {
	spec := holon.Spec{}
	if err := decode(r, &spec); err != nil {
		writeError(w, err)
		return
	}
	id, err := app.Sim.AddHolon(spec)
	if err != nil {
		writeError(w, err)
		return
	}
	h, err := app.Sim.Holon(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

// HolonHandler reads or decommissions one holon.
func (app *App) HolonHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	switch r.Method {
	case "GET":
		h, err := app.Sim.Holon(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, h)
	case "DELETE":
		if err := app.Sim.RemoveHolon(id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusNoContent, nil)
	}
}

// ToggleHandler flips a holon between operational and maintenance.
func (app *App) ToggleHandler(w http.ResponseWriter, r *http.Request) {
	status, err := app.Sim.ToggleStatus(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status holon.Status `json:"status"`
	}{status})
}

// ParentHandler reparents a holon. A null or empty parentId islands it.
func (app *App) ParentHandler(w http.ResponseWriter, r *http.Request) {
	req := struct {
		ParentID *string `json:"parentId"`
	}{}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	parent := ""
	if req.ParentID != nil {
		parent = *req.ParentID
	}
	id := mux.Vars(r)["id"]
	if err := app.Sim.Reparent(id, parent); err != nil {
		writeError(w, err)
		return
	}
	h, err := app.Sim.Holon(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

// WhatIfHandler asks the narrator to predict the effect of a reparent
// without applying it.
func (app *App) WhatIfHandler(w http.ResponseWriter, r *http.Request) {
	if app.Narrator == nil {
		writeError(w, errUnavailable)
		return
	}
	req, err := app.Sim.WhatIf(mux.Vars(r)["id"], r.URL.Query().Get("parent"))
	if err != nil {
		writeError(w, err)
		return
	}
	prediction := report.Predict(r.Context(), app.Narrator, req)
	log.Printf("[Webservice] what-if %s -> %s", req.Holon, req.NewParent)
	writeJSON(w, http.StatusOK, struct {
		Request    report.WhatIf `json:"request"`
		Prediction string        `json:"prediction"`
	}{req, prediction})
}

// SnapshotsHandler lists the stored snapshots or saves the live state.
func (app *App) SnapshotsHandler(w http.ResponseWriter, r *http.Request) {
	if app.Store == nil {
		writeError(w, errUnavailable)
		return
	}
	switch r.Method {
	case "GET":
		infos, err := app.Store.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, infos)
	case "POST":
		req := struct {
			Name string `json:"name"`
		}{}
		if r.ContentLength != 0 {
			if err := decode(r, &req); err != nil {
				writeError(w, err)
				return
			}
		}
		s, err := app.Sim.SaveSnapshot(r.Context(), app.Store, req.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, s.Info())
	}
}

// SnapshotHandler deletes a stored snapshot.
func (app *App) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	if app.Store == nil {
		writeError(w, errUnavailable)
		return
	}
	if err := app.Sim.DeleteSnapshot(r.Context(), app.Store, mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// LoadSnapshotHandler replaces the live state with a stored snapshot.
func (app *App) LoadSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	if app.Store == nil {
		writeError(w, errUnavailable)
		return
	}
	if err := app.Sim.LoadSnapshot(r.Context(), app.Store, mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app.Sim.State())
}
