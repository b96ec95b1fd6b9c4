// Package metrics exports simulation telemetry to Prometheus.
package metrics

import (
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/ohowland/holarchy/internal/pkg/audit"
	"github.com/ohowland/holarchy/internal/pkg/msg"
	"github.com/ohowland/holarchy/internal/pkg/simulation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metrics for the simulation
type Registry struct {
	registry *prometheus.Registry

	TicksTotal        prometheus.Counter
	Tick              prometheus.Gauge
	ResilienceScore   prometheus.Gauge
	GenerationKW      prometheus.Gauge
	ConsumptionKW     prometheus.Gauge
	NetKW             prometheus.Gauge
	StorageKW         prometheus.Gauge
	ConnectedHolons   prometheus.Gauge
	IslandedHolons    prometheus.Gauge
	SettledKWTotal    *prometheus.CounterVec
	AuditEntriesTotal *prometheus.CounterVec

	mux     *sync.Mutex
	pub     msg.Publisher
	pid     uuid.UUID
	stop    chan bool
	stopped bool
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		mux:      &sync.Mutex{},
		stop:     make(chan bool),
	}
	r.initTickMetrics()
	r.initGridMetrics()
	r.initAuditMetrics()
	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

func (r *Registry) initTickMetrics() {
	r.TicksTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "holarchy_ticks_total",
			Help: "Total number of settled ticks",
		},
	)

	r.Tick = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "holarchy_tick",
			Help: "Current simulation tick",
		},
	)
}

func (r *Registry) initGridMetrics() {
	r.ResilienceScore = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "holarchy_resilience_score",
			Help: "Adequacy index of the grid-connected holons, 0 to 100",
		},
	)

	r.GenerationKW = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "holarchy_generation_kw",
			Help: "Total generation potential of the last tick",
		},
	)

	r.ConsumptionKW = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "holarchy_consumption_kw",
			Help: "Total demand of the last tick",
		},
	)

	r.NetKW = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "holarchy_net_kw",
			Help: "Generation minus demand of the last tick, before settlement",
		},
	)

	r.StorageKW = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "holarchy_storage_kw",
			Help: "Energy held by all storage holons",
		},
	)

	r.ConnectedHolons = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "holarchy_connected_holons",
			Help: "Holons whose parent chain reaches the root",
		},
	)

	r.IslandedHolons = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "holarchy_islanded_holons",
			Help: "Holons cut off from the root",
		},
	)

	r.SettledKWTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "holarchy_settled_kw_total",
			Help: "Energy moved during settlement",
		},
		[]string{"flow"},
	)
}

func (r *Registry) initAuditMetrics() {
	r.AuditEntriesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "holarchy_audit_entries_total",
			Help: "Audit log entries by kind",
		},
		[]string{"kind"},
	)
}

// RecordTick updates every grid metric from ev.
func (r *Registry) RecordTick(ev simulation.TickEvent) {
	r.TicksTotal.Inc()
	r.Tick.Set(float64(ev.Tick))
	r.ResilienceScore.Set(float64(ev.Resilience.Score))
	r.GenerationKW.Set(ev.TotalGeneration)
	r.ConsumptionKW.Set(ev.TotalConsumption)
	r.NetKW.Set(ev.Net)
	r.StorageKW.Set(ev.Storage)
	r.ConnectedHolons.Set(float64(ev.Resilience.Connected))
	r.IslandedHolons.Set(float64(ev.Resilience.Islanded))
	r.SettledKWTotal.WithLabelValues("charged").Add(ev.Charged)
	r.SettledKWTotal.WithLabelValues("discharged").Add(ev.Discharged)
	r.SettledKWTotal.WithLabelValues("curtailed").Add(ev.Curtailed)
	r.SettledKWTotal.WithLabelValues("unserved").Add(ev.Unserved)
}

// RecordAudit counts e by kind.
func (r *Registry) RecordAudit(e audit.Entry) {
	r.AuditEntriesTotal.WithLabelValues(string(e.Kind)).Inc()
}

// Subscribe attaches the registry to pub's tick and audit topics and records
// until Stop is called or the publisher closes.
func (r *Registry) Subscribe(pub msg.Publisher) error {
	pid, err := uuid.NewUUID()
	if err != nil {
		return err
	}
	ticks, err := pub.Subscribe(pid, msg.Tick)
	if err != nil {
		return err
	}
	entries, err := pub.Subscribe(pid, msg.Audit)
	if err != nil {
		pub.Unsubscribe(pid)
		return err
	}
	r.mux.Lock()
	r.pub, r.pid = pub, pid
	r.mux.Unlock()
	go r.Process(ticks, entries)
	log.Println("[Metrics] subscribed to simulation")
	return nil
}

// Process is the recording loop.
func (r *Registry) Process(ticks, entries <-chan msg.Msg) {
loop:
	for {
		select {
		case m, ok := <-ticks:
			if !ok {
				break loop
			}
			if ev, ok := m.Payload().(simulation.TickEvent); ok {
				r.RecordTick(ev)
			}
		case m, ok := <-entries:
			if !ok {
				break loop
			}
			if e, ok := m.Payload().(audit.Entry); ok {
				r.RecordAudit(e)
			}
		case <-r.stop:
			break loop
		}
	}
	log.Println("[Metrics] Goroutine Shutdown")
}

// Stop ends the recording loop and releases the subscription. Later calls
// are no-ops.
func (r *Registry) Stop() {
	r.mux.Lock()
	defer r.mux.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	close(r.stop)
	if r.pub != nil {
		r.pub.Unsubscribe(r.pid)
	}
}
