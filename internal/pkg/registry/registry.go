// Package registry holds the holon records of a simulation and the
// parent/child relation between them.
package registry

import (
	"errors"
	"fmt"

	"github.com/ohowland/holarchy/internal/pkg/holon"
)

var (
	// ErrProtectedNode is returned when removing or reparenting the root holon.
	ErrProtectedNode = errors.New("protected node")
	// ErrDuplicateID is returned when adding a holon whose id is taken.
	ErrDuplicateID = errors.New("duplicate holon id")
	// ErrUnknownHolon is returned when an operation names a holon that does not exist.
	ErrUnknownHolon = errors.New("unknown holon")
	// ErrCycle is returned when a reparent would make a holon its own ancestor.
	ErrCycle = errors.New("parent cycle")
)

// Registry is an insertion ordered collection of holons keyed by id.
// Registry order is the order storage units are settled in.
type Registry struct {
	order      []string
	holons     map[string]*holon.Holon
	historyCap int
}

// New returns an empty registry whose holons retain historyCap readings.
func New(historyCap int) *Registry {
	if historyCap < 1 {
		historyCap = holon.DefaultHistoryCap
	}
	return &Registry{
		order:      make([]string, 0),
		holons:     make(map[string]*holon.Holon),
		historyCap: historyCap,
	}
}

// FromHolons rebuilds a registry from restored records, keeping their
// status and history. Parents that do not resolve are re-pointed to the root.
func FromHolons(list []holon.Holon, historyCap int) (*Registry, error) {
	r := New(historyCap)
	for _, h := range list {
		if _, exists := r.holons[h.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, h.ID)
		}
		c := h.Clone()
		c.History = c.History.Resize(r.historyCap)
		if c.IsRoot() {
			c.ParentID = ""
		}
		r.order = append(r.order, c.ID)
		r.holons[c.ID] = &c
	}
	if _, ok := r.holons[holon.RootID]; !ok {
		return nil, fmt.Errorf("%w: %s missing", ErrUnknownHolon, holon.RootID)
	}
	for _, h := range r.holons {
		if h.ParentID == "" {
			continue
		}
		if _, ok := r.holons[h.ParentID]; !ok {
			h.ParentID = holon.RootID
		}
	}
	for _, id := range r.order {
		if r.inCycle(id) {
			r.holons[id].ParentID = holon.RootID
		}
	}
	return r, nil
}

// HistoryCap is the history capacity given to new holons.
func (r *Registry) HistoryCap() int {
	return r.historyCap
}

// Len is the number of holons.
func (r *Registry) Len() int {
	return len(r.order)
}

// Add inserts a new operational holon with an empty history.
func (r *Registry) Add(s holon.Spec) (*holon.Holon, error) {
	if _, exists := r.holons[s.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, s.ID)
	}
	if s.ID == holon.RootID && s.ParentID != "" {
		return nil, fmt.Errorf("%w: %s cannot have a parent", ErrProtectedNode, s.ID)
	}
	if s.ParentID != "" {
		if _, ok := r.holons[s.ParentID]; !ok {
			return nil, fmt.Errorf("%w: parent %s", ErrUnknownHolon, s.ParentID)
		}
	}
	h := holon.New(s, r.historyCap)
	r.order = append(r.order, h.ID)
	r.holons[h.ID] = &h
	return &h, nil
}

// Remove deletes a holon and re-homes its direct children to the root.
func (r *Registry) Remove(id string) (holon.Holon, error) {
	if id == holon.RootID {
		return holon.Holon{}, fmt.Errorf("%w: %s cannot be removed", ErrProtectedNode, id)
	}
	h, ok := r.holons[id]
	if !ok {
		return holon.Holon{}, fmt.Errorf("%w: %s", ErrUnknownHolon, id)
	}
	for _, child := range r.ChildrenOf(id) {
		child.ParentID = holon.RootID
	}
	delete(r.holons, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return *h, nil
}

// Reparent moves a holon under parentID. An empty parentID islands the holon.
func (r *Registry) Reparent(id, parentID string) error {
	if id == holon.RootID {
		return fmt.Errorf("%w: %s cannot be reparented", ErrProtectedNode, id)
	}
	h, ok := r.holons[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHolon, id)
	}
	if parentID == "" {
		h.ParentID = ""
		return nil
	}
	if _, ok := r.holons[parentID]; !ok {
		return fmt.Errorf("%w: parent %s", ErrUnknownHolon, parentID)
	}
	if parentID == id {
		return fmt.Errorf("%w: %s under itself", ErrCycle, id)
	}
	ancestors, _ := r.AncestorsOf(parentID)
	for _, a := range ancestors {
		if a.ID == id {
			return fmt.Errorf("%w: %s is an ancestor of %s", ErrCycle, id, parentID)
		}
	}
	h.ParentID = parentID
	return nil
}

// SetStatus sets the operating status of a holon.
func (r *Registry) SetStatus(id string, status holon.Status) error {
	h, ok := r.holons[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHolon, id)
	}
	h.Status = status
	return nil
}

// Toggle flips a holon between operational and maintenance and returns the new status.
func (r *Registry) Toggle(id string) (holon.Status, error) {
	h, ok := r.holons[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownHolon, id)
	}
	if h.Status == holon.Operational {
		h.Status = holon.Maintenance
	} else {
		h.Status = holon.Operational
	}
	return h.Status, nil
}

// Get returns the live record for id.
func (r *Registry) Get(id string) (*holon.Holon, bool) {
	h, ok := r.holons[id]
	return h, ok
}

// All returns the live records in registry order.
func (r *Registry) All() []*holon.Holon {
	out := make([]*holon.Holon, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.holons[id])
	}
	return out
}

// Snapshot returns deep copies of all records in registry order.
func (r *Registry) Snapshot() []holon.Holon {
	out := make([]holon.Holon, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.holons[id].Clone())
	}
	return out
}

// ChildrenOf returns the direct children of id in registry order.
func (r *Registry) ChildrenOf(id string) []*holon.Holon {
	children := make([]*holon.Holon, 0)
	for _, oid := range r.order {
		if h := r.holons[oid]; h.ParentID == id {
			children = append(children, h)
		}
	}
	return children
}

// AncestorsOf returns the chain of parents of id, nearest first.
func (r *Registry) AncestorsOf(id string) ([]*holon.Holon, error) {
	h, ok := r.holons[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHolon, id)
	}
	ancestors := make([]*holon.Holon, 0)
	seen := map[string]bool{id: true}
	for h.ParentID != "" {
		parent, ok := r.holons[h.ParentID]
		if !ok || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		ancestors = append(ancestors, parent)
		h = parent
	}
	return ancestors, nil
}

func (r *Registry) inCycle(id string) bool {
	seen := map[string]bool{}
	h, ok := r.holons[id]
	for ok && h.ParentID != "" {
		if h.ParentID == id {
			return true
		}
		if seen[h.ParentID] {
			return false
		}
		seen[h.ParentID] = true
		h, ok = r.holons[h.ParentID]
	}
	return false
}
