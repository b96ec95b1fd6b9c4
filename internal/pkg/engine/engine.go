// Package engine advances a holarchy by one tick: per-holon potentials under
// the current weather, then global settlement of the surplus or deficit
// against storage units.
package engine

import (
	"math"
	"math/rand"
	"time"

	"github.com/ohowland/holarchy/internal/pkg/environment"
	"github.com/ohowland/holarchy/internal/pkg/holon"
)

const (
	noiseSpan          = 0.05
	flatYieldFactor    = 0.8
	chargeEfficiency   = 0.95
	chargeRateLimit    = 0.2
	dischargeRateLimit = 0.5
)

// Source supplies uniform random numbers in [0,1).
type Source interface {
	Float64() float64
}

// Engine computes ticks. It holds no simulation state of its own.
type Engine struct {
	rand Source
	now  func() time.Time
}

// New returns an engine drawing noise from src. A nil src uses a time seeded source.
func New(src Source) *Engine {
	if src == nil {
		src = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{rand: src, now: time.Now}
}

// WithClock replaces the wall clock used to stamp readings.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Result summarises one settled tick.
type Result struct {
	Tick             uint64                   `json:"tick"`
	Weather          environment.Weather      `json:"weather"`
	TotalGeneration  float64                  `json:"totalGeneration"`
	TotalConsumption float64                  `json:"totalConsumption"`
	Net              float64                  `json:"net"`
	Charged          float64                  `json:"charged"`
	Discharged       float64                  `json:"discharged"`
	Unserved         float64                  `json:"unserved"`
	Curtailed        float64                  `json:"curtailed"`
	Readings         map[string]holon.Reading `json:"readings"`
}

type flow struct {
	p, c   float64
	stored float64
}

// Step advances holons from tick to tick+1 and appends one reading to every
// holon's history. Holons are settled in slice order.
func (e *Engine) Step(tick uint64, w environment.Weather, holons []*holon.Holon) Result {
	next := tick + 1
	dailyTick := environment.DailyTick(next)
	factors := environment.FactorsFor(w)

	flows := e.potentials(dailyTick, factors, holons)

	res := Result{
		Tick:     next,
		Weather:  w,
		Readings: make(map[string]holon.Reading, len(holons)),
	}
	for _, f := range flows {
		res.TotalGeneration += f.p
		res.TotalConsumption += f.c
	}
	res.Net = res.TotalGeneration - res.TotalConsumption

	res.Charged, res.Discharged, res.Curtailed, res.Unserved = settle(res.Net, holons, flows)

	stamp := e.now()
	for i, h := range holons {
		f := flows[i]
		r := holon.Reading{
			Timestamp:   stamp,
			Production:  math.Round(f.p),
			Consumption: math.Round(f.c),
			Storage:     math.Round(f.stored),
			Net:         math.Round(f.p - f.c),
		}
		h.History.Push(r)
		res.Readings[h.ID] = r
	}
	return res
}

// potentials computes each holon's production and consumption before any
// cross-holon settlement.
func (e *Engine) potentials(dailyTick int, f environment.Factors, holons []*holon.Holon) []flow {
	solar := environment.SolarCurve(dailyTick) * f.YieldMultiplier
	demand := environment.DemandCurve(dailyTick) * f.DemandBase

	flows := make([]flow, len(holons))
	for i, h := range holons {
		if h.Type == holon.Storage {
			flows[i].stored = h.StoredLevel()
		}
		if !h.Operational() {
			continue
		}
		if h.Type.Produces() {
			factor := flatYieldFactor * f.YieldMultiplier
			multi := 1.0
			switch h.Profile {
			case holon.Solar:
				factor = solar
			case holon.Wind:
				multi = f.WindMultiplier
			}
			flows[i].p = math.Max(0, h.BaseCapacity*(factor+e.noise())*multi)
		}
		if h.Type.Consumes() {
			flows[i].c = math.Max(0, h.BaseDemand*(demand+e.noise()))
		}
	}
	return flows
}

func (e *Engine) noise() float64 {
	return (e.rand.Float64() - 0.5) * noiseSpan
}

// settle absorbs a surplus into, or serves a deficit from, the operational
// storage units in order. Earlier units get first claim. It returns the energy
// charged, discharged, and the surplus or deficit left over.
func settle(net float64, holons []*holon.Holon, flows []flow) (charged, discharged, curtailed, unserved float64) {
	switch {
	case net > 0:
		remaining := net
		for i, h := range holons {
			if h.Type != holon.Storage || !h.Operational() {
				continue
			}
			headroom := h.BaseCapacity - flows[i].stored
			amount := math.Min(remaining*chargeEfficiency, math.Min(headroom, h.BaseCapacity*chargeRateLimit))
			flows[i].stored += amount
			flows[i].c += amount
			charged += amount
			remaining -= amount
		}
		curtailed = remaining
	case net < 0:
		deficit := -net
		for i, h := range holons {
			if h.Type != holon.Storage || !h.Operational() {
				continue
			}
			amount := math.Min(deficit, math.Min(flows[i].stored, h.BaseCapacity*dischargeRateLimit))
			flows[i].stored -= amount
			flows[i].p += amount
			discharged += amount
			deficit -= amount
		}
		unserved = deficit
	}
	return charged, discharged, curtailed, unserved
}
