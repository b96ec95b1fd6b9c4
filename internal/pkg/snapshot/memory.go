package snapshot

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ohowland/holarchy/internal/pkg/holon"
)

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mux   *sync.Mutex
	snaps map[string]Snapshot
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{mux: &sync.Mutex{}, snaps: make(map[string]Snapshot)}
}

// Save stores a copy of s, replacing any snapshot with the same id.
func (m *MemoryStore) Save(ctx context.Context, s Snapshot) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.snaps[s.ID] = s.clone()
	return nil
}

// Load returns a copy of the snapshot with the given id.
func (m *MemoryStore) Load(ctx context.Context, id string) (Snapshot, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	s, ok := m.snaps[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.clone(), nil
}

// List returns every stored snapshot, newest first.
func (m *MemoryStore) List(ctx context.Context) ([]Info, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	out := make([]Info, 0, len(m.snaps))
	for _, s := range m.snaps {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// Delete removes the snapshot with the given id.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if _, ok := m.snaps[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.snaps, id)
	return nil
}

func (s Snapshot) clone() Snapshot {
	c := s
	c.State.Holons = make([]holon.Holon, len(s.State.Holons))
	for i, h := range s.State.Holons {
		c.State.Holons[i] = h.Clone()
	}
	return c
}
