package webservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/ohowland/holarchy/internal/pkg/audit"
	"github.com/ohowland/holarchy/internal/pkg/environment"
	"github.com/ohowland/holarchy/internal/pkg/holon"
	"github.com/ohowland/holarchy/internal/pkg/metrics"
	"github.com/ohowland/holarchy/internal/pkg/report"
	"github.com/ohowland/holarchy/internal/pkg/resilience"
	"github.com/ohowland/holarchy/internal/pkg/simulation"
	"github.com/ohowland/holarchy/internal/pkg/snapshot"
	"gotest.tools/v3/assert"
)

type cannedNarrator struct {
	text string
	err  error
}

func (n cannedNarrator) Narrate(ctx context.Context, req report.Request) (string, error) {
	return n.text, n.err
}

func newApp(t *testing.T) *App {
	sim, err := simulation.NewFromConfig(simulation.Config{Seed: 11})
	assert.NilError(t, err)
	t.Cleanup(sim.Close)
	return &App{
		Sim:      sim,
		Store:    snapshot.NewMemoryStore(),
		Narrator: cannedNarrator{text: "All holons nominal."},
	}
}

func makeRouter(t *testing.T) (*App, *mux.Router) {
	app := newApp(t)
	return app, app.Router()
}

func do(router http.Handler, method, target string, body interface{}) *httptest.ResponseRecorder {
	var buf io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		buf = bytes.NewBuffer(raw)
	}
	w := httptest.NewRecorder()
	r := httptest.NewRequest(method, "http://example.com"+target, buf)
	router.ServeHTTP(w, r)
	return w
}

func TestNewConfig(t *testing.T) {
	cfg, err := NewConfig("./webservice_test_config.json")
	assert.NilError(t, err)
	assert.Equal(t, cfg.Port, "8080")

	app := &App{Config: cfg}
	assert.Equal(t, app.NewServer().Addr, "localhost:8080")
}

func TestBaseHandler(t *testing.T) {
	_, router := makeRouter(t)
	w := do(router, "GET", "/", nil)
	assert.Equal(t, w.Code, http.StatusOK)
	assert.Equal(t, w.Result().Header.Get("Content-Type"), "application/json; charset=UTF-8")
}

func TestStepAndState(t *testing.T) {
	_, router := makeRouter(t)

	w := do(router, "POST", "/simulation/step?n=3", nil)
	assert.Equal(t, w.Code, http.StatusOK)
	ev := simulation.TickEvent{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &ev))
	assert.Equal(t, ev.Tick, uint64(3))

	w = do(router, "GET", "/state", nil)
	assert.Equal(t, w.Code, http.StatusOK)
	doc := snapshot.Document{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, doc.Tick, uint64(3))
	assert.Equal(t, len(doc.Holons), 6)
	assert.Equal(t, doc.Holons[0].History.Len(), 3)

	w = do(router, "POST", "/simulation/step?n=zero", nil)
	assert.Equal(t, w.Code, http.StatusBadRequest)
}

func TestStartStop(t *testing.T) {
	app, router := makeRouter(t)
	assert.Equal(t, do(router, "POST", "/simulation/start", nil).Code, http.StatusOK)
	assert.Assert(t, app.Sim.Running())
	assert.Equal(t, do(router, "POST", "/simulation/stop", nil).Code, http.StatusOK)
	assert.Assert(t, !app.Sim.Running())
}

func TestSpeedAndWeather(t *testing.T) {
	app, router := makeRouter(t)

	assert.Equal(t, do(router, "PUT", "/simulation/speed", map[string]int{"speed": 20}).Code, http.StatusOK)
	assert.Equal(t, app.Sim.Speed(), 20)
	assert.Equal(t, do(router, "PUT", "/simulation/speed", map[string]int{"speed": 0}).Code, http.StatusBadRequest)

	assert.Equal(t, do(router, "PUT", "/simulation/weather", map[string]string{"weather": "cloudy"}).Code, http.StatusOK)
	assert.Equal(t, app.Sim.State().Weather, environment.Cloudy)
	assert.Equal(t, do(router, "PUT", "/simulation/weather", map[string]string{"weather": "hail"}).Code, http.StatusBadRequest)

	w := do(router, "GET", "/audit", nil)
	entries := []audit.Entry{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	assert.Equal(t, len(entries), 1)
	assert.Equal(t, entries[0].Details, "Climate changed to CLOUDY")
}

func TestHolonLifecycle(t *testing.T) {
	_, router := makeRouter(t)

	w := do(router, "POST", "/holons", holon.Spec{Name: "Depot", Type: holon.Consumer, BaseDemand: 80})
	assert.Equal(t, w.Code, http.StatusCreated)
	created := holon.Holon{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Assert(t, strings.HasPrefix(created.ID, "node-"))
	assert.Equal(t, created.ParentID, holon.RootID)

	w = do(router, "PUT", "/holons/"+created.ID+"/parent", map[string]string{"parentId": "residential-1"})
	assert.Equal(t, w.Code, http.StatusOK)

	w = do(router, "PUT", "/holons/residential-1/parent", map[string]string{"parentId": created.ID})
	assert.Equal(t, w.Code, http.StatusConflict)

	w = do(router, "PUT", "/holons/"+created.ID+"/parent", map[string]interface{}{"parentId": nil})
	assert.Equal(t, w.Code, http.StatusOK)
	moved := holon.Holon{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &moved))
	assert.Equal(t, moved.ParentID, "")

	w = do(router, "POST", "/holons/"+created.ID+"/toggle", nil)
	assert.Equal(t, w.Code, http.StatusOK)
	assert.Assert(t, strings.Contains(w.Body.String(), `"MAINTENANCE"`))

	assert.Equal(t, do(router, "DELETE", "/holons/"+created.ID, nil).Code, http.StatusNoContent)
	assert.Equal(t, do(router, "GET", "/holons/"+created.ID, nil).Code, http.StatusNotFound)
}

func TestHolonErrors(t *testing.T) {
	_, router := makeRouter(t)
	assert.Equal(t, do(router, "DELETE", "/holons/"+holon.RootID, nil).Code, http.StatusForbidden)
	assert.Equal(t, do(router, "POST", "/holons", holon.Spec{ID: "factory-1"}).Code, http.StatusConflict)
	assert.Equal(t, do(router, "POST", "/holons", holon.Spec{BaseDemand: -1}).Code, http.StatusBadRequest)
	assert.Equal(t, do(router, "POST", "/holons/ghost/toggle", nil).Code, http.StatusNotFound)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "http://example.com/holons", strings.NewReader("{")))
	assert.Equal(t, w.Code, http.StatusBadRequest)
}

func TestResilienceAndReport(t *testing.T) {
	_, router := makeRouter(t)
	do(router, "POST", "/simulation/step?n=5", nil)

	w := do(router, "GET", "/resilience", nil)
	b := resilience.Breakdown{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &b))
	assert.Equal(t, b.Connected, 6)

	w = do(router, "GET", "/report", nil)
	assert.Equal(t, w.Code, http.StatusOK)
	resp := struct {
		Summary []report.HolonSummary `json:"summary"`
		Report  string                `json:"report"`
	}{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, len(resp.Summary), 6)
	assert.Equal(t, resp.Report, "All holons nominal.")
}

func TestWhatIf(t *testing.T) {
	app, router := makeRouter(t)
	w := do(router, "GET", "/holons/wind-turbine-1/whatif?parent=factory-1", nil)
	assert.Equal(t, w.Code, http.StatusOK)
	assert.Assert(t, strings.Contains(w.Body.String(), "All holons nominal."))

	app.Narrator = cannedNarrator{err: errors.New("offline")}
	w = do(app.Router(), "GET", "/holons/wind-turbine-1/whatif", nil)
	assert.Assert(t, strings.Contains(w.Body.String(), report.PredictionUnavailable))

	app.Narrator = nil
	w = do(app.Router(), "GET", "/holons/wind-turbine-1/whatif", nil)
	assert.Equal(t, w.Code, http.StatusServiceUnavailable)
}

func TestSnapshots(t *testing.T) {
	app, router := makeRouter(t)
	do(router, "POST", "/simulation/step?n=4", nil)

	w := do(router, "POST", "/snapshots", map[string]string{"name": "four"})
	assert.Equal(t, w.Code, http.StatusCreated)
	info := snapshot.Info{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, info.Tick, uint64(4))

	do(router, "POST", "/simulation/step?n=4", nil)
	w = do(router, "POST", "/snapshots/"+info.ID+"/load", nil)
	assert.Equal(t, w.Code, http.StatusOK)
	assert.Equal(t, app.Sim.Tick(), uint64(4))

	w = do(router, "GET", "/snapshots", nil)
	infos := []snapshot.Info{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &infos))
	assert.Equal(t, len(infos), 1)

	assert.Equal(t, do(router, "DELETE", "/snapshots/"+info.ID, nil).Code, http.StatusNoContent)
	assert.Equal(t, do(router, "POST", "/snapshots/"+info.ID+"/load", nil).Code, http.StatusNotFound)

	app.Store = nil
	assert.Equal(t, do(app.Router(), "GET", "/snapshots", nil).Code, http.StatusServiceUnavailable)
}

func TestResetAndPreset(t *testing.T) {
	app, router := makeRouter(t)
	assert.Equal(t, do(router, "POST", "/simulation/preset", nil).Code, http.StatusOK)
	solar, _ := app.Sim.Holon("solar-farm-1")
	assert.Equal(t, solar.ParentID, "residential-1")

	assert.Equal(t, do(router, "POST", "/simulation/reset", nil).Code, http.StatusOK)
	solar, _ = app.Sim.Holon("solar-farm-1")
	assert.Equal(t, solar.ParentID, holon.RootID)
	assert.Equal(t, len(app.Sim.AuditLog()), 0)
}

func TestMetricsEndpoint(t *testing.T) {
	app := newApp(t)
	reg := metrics.NewRegistry()
	app.Gatherer = reg.GetPrometheusRegistry()
	reg.RecordTick(app.Sim.Step())

	w := do(app.Router(), "GET", "/metrics", nil)
	assert.Equal(t, w.Code, http.StatusOK)
	assert.Assert(t, strings.Contains(w.Body.String(), "holarchy_ticks_total 1"))
}

func TestStream(t *testing.T) {
	app := newApp(t)
	server := httptest.NewServer(app.Router())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NilError(t, err)
	defer conn.Close()

	// the handler subscribes after the upgrade completes, so keep stepping
	// until a frame arrives
	done := make(chan bool)
	defer close(done)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				app.Sim.Step()
			case <-done:
				return
			}
		}
	}()

	frame := struct {
		Topic   string          `json:"topic"`
		Payload json.RawMessage `json:"payload"`
	}{}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	assert.NilError(t, conn.ReadJSON(&frame))
	assert.Equal(t, frame.Topic, "tick")
	ev := simulation.TickEvent{}
	assert.NilError(t, json.Unmarshal(frame.Payload, &ev))
	assert.Assert(t, ev.Tick >= 1)
}
