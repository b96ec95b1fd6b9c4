// Package simulation owns a running holarchy: its clock, weather and speed,
// the holon registry and the audit log. Every tick and every command runs
// under one mutex, so readers never see a half-settled tick.
package simulation

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/holarchy/internal/pkg/audit"
	"github.com/ohowland/holarchy/internal/pkg/engine"
	"github.com/ohowland/holarchy/internal/pkg/environment"
	"github.com/ohowland/holarchy/internal/pkg/holon"
	"github.com/ohowland/holarchy/internal/pkg/msg"
	"github.com/ohowland/holarchy/internal/pkg/registry"
	"github.com/ohowland/holarchy/internal/pkg/report"
	"github.com/ohowland/holarchy/internal/pkg/resilience"
	"github.com/ohowland/holarchy/internal/pkg/snapshot"
)

// ErrInvalidSpeed is returned by SetSpeed for a speed below 1.
var ErrInvalidSpeed = errors.New("speed must be a positive integer")

// Controller drives one simulation.
type Controller struct {
	mux       *sync.Mutex
	pid       uuid.UUID
	config    Config
	engine    *engine.Engine
	registry  *registry.Registry
	log       *audit.Log
	publisher *msg.PubSub
	tick      uint64
	speed     int
	weather   environment.Weather
	running   bool
	stop      chan bool
}

// TickEvent is published on msg.Tick after every tick.
type TickEvent struct {
	engine.Result
	SimTime    string               `json:"simTime"`
	Resilience resilience.Breakdown `json:"resilience"`
	Storage    float64              `json:"storage"`
}

// Totals are the system-wide sums of the latest readings.
type Totals struct {
	Production  float64 `json:"production"`
	Consumption float64 `json:"consumption"`
	Storage     float64 `json:"storage"`
	Net         float64 `json:"net"`
}

// New builds a controller from the JSON config at configPath.
func New(configPath string) (*Controller, error) {
	cfg, err := NewConfig(configPath)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(cfg)
}

// NewFromConfig builds a stopped controller at tick 0 with the configured
// topology. A non-zero Seed makes the noise sequence reproducible.
func NewFromConfig(cfg Config) (*Controller, error) {
	cfg = cfg.withDefaults()

	reg, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}

	var src engine.Source
	if cfg.Seed != 0 {
		src = rand.New(rand.NewSource(cfg.Seed))
	}

	return &Controller{
		mux:       &sync.Mutex{},
		pid:       pid,
		config:    cfg,
		engine:    engine.New(src),
		registry:  reg,
		log:       audit.New(cfg.AuditCap),
		publisher: msg.NewPublisher(pid),
		speed:     1,
		weather:   environment.Clear,
	}, nil
}

func buildRegistry(cfg Config) (*registry.Registry, error) {
	reg := registry.New(cfg.HistoryCap)
	for _, s := range cfg.Topology {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, err := reg.Add(s.Defaults()); err != nil {
			return nil, fmt.Errorf("topology holon %q: %w", s.ID, err)
		}
	}
	if _, ok := reg.Get(holon.RootID); !ok {
		return nil, fmt.Errorf("topology: %w: %s", registry.ErrUnknownHolon, holon.RootID)
	}
	return reg, nil
}

// PID returns the controller's publisher id.
func (c *Controller) PID() uuid.UUID {
	return c.pid
}

// Subscribe returns a channel on which the specified topic is broadcast
func (c *Controller) Subscribe(pid uuid.UUID, topic msg.Topic) (<-chan msg.Msg, error) {
	return c.publisher.Subscribe(pid, topic)
}

// Unsubscribe pid from all topic broadcasts
func (c *Controller) Unsubscribe(pid uuid.UUID) {
	c.publisher.Unsubscribe(pid)
}

// Start begins ticking every BaseInterval/speed. It is a no-op when already running.
func (c *Controller) Start() {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stop = make(chan bool)
	go c.process(c.stop)
	log.Println("[Controller] started at tick", c.tick)
}

// Stop halts ticking immediately. A pending tick is cancelled.
func (c *Controller) Stop() {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.halt() {
		log.Println("[Controller] stopped at tick", c.tick)
	}
}

// halt clears the run flag and ends the ticker goroutine. Caller holds mux.
func (c *Controller) halt() bool {
	if !c.running {
		return false
	}
	c.running = false
	close(c.stop)
	c.stop = nil
	return true
}

// Close stops the simulation and closes every subscription.
func (c *Controller) Close() {
	c.Stop()
	c.publisher.Close()
}

// process is the ticker goroutine. The period is recomputed before every
// tick so a speed change applies from the next scheduled tick.
func (c *Controller) process(stop chan bool) {
	for {
		c.mux.Lock()
		interval := c.interval()
		c.mux.Unlock()

		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
			c.mux.Lock()
			select {
			case <-stop:
				c.mux.Unlock()
				return
			default:
			}
			c.step()
			c.mux.Unlock()
		case <-stop:
			timer.Stop()
			return
		}
	}
}

func (c *Controller) interval() time.Duration {
	return c.config.BaseInterval() / time.Duration(c.speed)
}

// Step advances the simulation by exactly one tick, running or not.
func (c *Controller) Step() TickEvent {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.step()
}

// Advance runs n ticks back to back and returns the last event.
func (c *Controller) Advance(n int) TickEvent {
	c.mux.Lock()
	defer c.mux.Unlock()
	var ev TickEvent
	for i := 0; i < n; i++ {
		ev = c.step()
	}
	return ev
}

func (c *Controller) step() TickEvent {
	holons := c.registry.All()
	res := c.engine.Step(c.tick, c.weather, holons)
	c.tick = res.Tick

	ev := TickEvent{
		Result:     res,
		SimTime:    environment.SimTime(res.Tick),
		Resilience: resilience.Assess(holons),
	}
	for _, h := range holons {
		if h.Type == holon.Storage {
			ev.Storage += h.StoredLevel()
		}
	}
	c.publisher.Publish(msg.Tick, ev)
	return ev
}

// record appends an audit entry and publishes it. Caller holds mux.
func (c *Controller) record(kind audit.Kind, action, details, impact string) {
	e := c.log.Record(kind, action, details, impact)
	c.publisher.Publish(msg.Audit, e)
}

// Tick is the current tick.
func (c *Controller) Tick() uint64 {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.tick
}

// Running reports whether the ticker is active.
func (c *Controller) Running() bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.running
}

// State returns a deep copy of the live state.
func (c *Controller) State() snapshot.Document {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.document()
}

func (c *Controller) document() snapshot.Document {
	return snapshot.Document{
		Tick:      c.tick,
		IsRunning: c.running,
		Speed:     c.speed,
		Weather:   c.weather,
		Holons:    c.registry.Snapshot(),
	}
}

// Holon returns a copy of the holon with the given id.
func (c *Controller) Holon(id string) (holon.Holon, error) {
	c.mux.Lock()
	defer c.mux.Unlock()
	h, ok := c.registry.Get(id)
	if !ok {
		return holon.Holon{}, fmt.Errorf("%w: %s", registry.ErrUnknownHolon, id)
	}
	return h.Clone(), nil
}

// Resilience is the current adequacy score, 0 to 100.
func (c *Controller) Resilience() int {
	return c.Assess().Score
}

// Assess returns the full resilience breakdown of the current state.
func (c *Controller) Assess() resilience.Breakdown {
	c.mux.Lock()
	defer c.mux.Unlock()
	return resilience.Assess(c.registry.All())
}

// AuditLog returns the retained entries, most recent first.
func (c *Controller) AuditLog() []audit.Entry {
	return c.log.Recent()
}

// Totals sums the latest reading of every holon.
func (c *Controller) Totals() Totals {
	c.mux.Lock()
	defer c.mux.Unlock()
	var t Totals
	for _, h := range c.registry.All() {
		last, ok := h.History.Latest()
		if !ok {
			continue
		}
		t.Production += last.Production
		t.Consumption += last.Consumption
		if h.Type == holon.Storage {
			t.Storage += last.Storage
		}
	}
	t.Net = t.Production - t.Consumption
	return t
}

// Summary is the per-holon payload for the report narrator.
func (c *Controller) Summary() []report.HolonSummary {
	c.mux.Lock()
	defer c.mux.Unlock()
	return report.Summarize(c.registry.Snapshot())
}

// WhatIf is the stability predictor payload for moving id under parentID.
func (c *Controller) WhatIf(id, parentID string) (report.WhatIf, error) {
	c.mux.Lock()
	defer c.mux.Unlock()
	h, ok := c.registry.Get(id)
	if !ok {
		return report.WhatIf{}, fmt.Errorf("%w: %s", registry.ErrUnknownHolon, id)
	}
	return report.NewWhatIf(*h, c.parentName(h.ParentID), c.parentName(parentID), c.registry.Snapshot()), nil
}

func (c *Controller) parentName(id string) string {
	if p, ok := c.registry.Get(id); ok {
		return p.Name
	}
	return islandName
}
