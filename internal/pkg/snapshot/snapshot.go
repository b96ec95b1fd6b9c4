// Package snapshot defines the serialisable form of a simulation and the
// interface persistence backends implement for it.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/holarchy/internal/pkg/environment"
	"github.com/ohowland/holarchy/internal/pkg/holon"
)

// ErrNotFound is returned by a Store when no snapshot has the requested id.
var ErrNotFound = errors.New("snapshot not found")

// Document is the complete simulation state as a plain structured record.
type Document struct {
	Tick      uint64              `json:"tick"`
	IsRunning bool                `json:"isRunning"`
	Speed     int                 `json:"speed"`
	Weather   environment.Weather `json:"weather"`
	Holons    []holon.Holon       `json:"holons"`
}

// Snapshot is a named, timestamped Document.
type Snapshot struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	State     Document  `json:"state"`
}

// New wraps doc in a snapshot with a fresh id. An empty name defaults to
// "Snapshot <time>".
func New(name string, doc Document) Snapshot {
	now := time.Now()
	if name == "" {
		name = fmt.Sprintf("Snapshot %s", now.Format("15:04:05"))
	}
	return Snapshot{
		ID:        "snap-" + uuid.New().String(),
		Name:      name,
		Timestamp: now,
		State:     doc,
	}
}

// Info is the listing form of a snapshot, without its state.
type Info struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Tick      uint64    `json:"tick"`
}

// Info returns the listing form of s.
func (s Snapshot) Info() Info {
	return Info{ID: s.ID, Name: s.Name, Timestamp: s.Timestamp, Tick: s.State.Tick}
}

// Store persists snapshots. List returns newest first.
type Store interface {
	Save(ctx context.Context, s Snapshot) error
	Load(ctx context.Context, id string) (Snapshot, error)
	List(ctx context.Context) ([]Info, error)
	Delete(ctx context.Context, id string) error
}
