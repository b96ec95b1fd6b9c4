package simulation

import (
	"context"
	"fmt"
	"log"

	"github.com/ohowland/holarchy/internal/pkg/audit"
	"github.com/ohowland/holarchy/internal/pkg/environment"
	"github.com/ohowland/holarchy/internal/pkg/msg"
	"github.com/ohowland/holarchy/internal/pkg/registry"
	"github.com/ohowland/holarchy/internal/pkg/snapshot"
)

// Snapshot captures the live state under name.
func (c *Controller) Snapshot(name string) snapshot.Snapshot {
	c.mux.Lock()
	defer c.mux.Unlock()
	return snapshot.New(name, c.document())
}

// Restore replaces the live state with s wholesale and stops the simulation.
// The audit log is cleared and then records the load.
func (c *Controller) Restore(s snapshot.Snapshot) error {
	reg, err := registry.FromHolons(s.State.Holons, c.config.HistoryCap)
	if err != nil {
		return fmt.Errorf("restore %s: %w", s.ID, err)
	}
	w, err := environment.ParseWeather(string(s.State.Weather))
	if err != nil {
		w = environment.Clear
	}
	speed := s.State.Speed
	if speed < 1 {
		speed = 1
	}

	c.mux.Lock()
	defer c.mux.Unlock()
	c.halt()
	c.registry = reg
	c.tick = s.State.Tick
	c.speed = speed
	c.weather = w
	c.log.Clear()
	c.record(audit.System, "Load State", fmt.Sprintf("Restored simulation %q", s.Name),
		"All telemetry and holarchy states synced to snapshot point.")
	c.publisher.Publish(msg.State, c.document())
	return nil
}

// SaveSnapshot captures the live state and persists it to store.
func (c *Controller) SaveSnapshot(ctx context.Context, store snapshot.Store, name string) (snapshot.Snapshot, error) {
	s := c.Snapshot(name)
	if err := store.Save(ctx, s); err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("save snapshot: %w", err)
	}

	c.mux.Lock()
	defer c.mux.Unlock()
	c.record(audit.System, "System Snapshot", fmt.Sprintf("Saved state as %q", s.Name),
		"Provides a restorable recovery point for grid architecture.")
	log.Printf("[Controller] saved snapshot %s at tick %d", s.ID, s.State.Tick)
	return s, nil
}

// LoadSnapshot fetches id from store and restores it.
func (c *Controller) LoadSnapshot(ctx context.Context, store snapshot.Store, id string) error {
	s, err := store.Load(ctx, id)
	if err != nil {
		return err
	}
	return c.Restore(s)
}

// DeleteSnapshot removes id from store. The live state is untouched.
func (c *Controller) DeleteSnapshot(ctx context.Context, store snapshot.Store, id string) error {
	return store.Delete(ctx, id)
}
