// Package audit keeps a bounded, most-recent-first record of the commands
// that changed a simulation.
package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCap is the number of entries retained when no capacity is configured.
const DefaultCap = 50

// Kind classifies an entry.
type Kind string

const (
	Environment Kind = "ENVIRONMENT"
	Structure   Kind = "STRUCTURE"
	NodeMgmt    Kind = "NODE_MGMT"
	System      Kind = "SYSTEM"
)

// Entry is one immutable log record.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Impact    string    `json:"impact"`
	Kind      Kind      `json:"type"`
}

// NewEntry stamps a new entry with a fresh id and the current time.
func NewEntry(kind Kind, action, details, impact string) Entry {
	return Entry{
		ID:        "log-" + uuid.New().String(),
		Timestamp: time.Now(),
		Action:    action,
		Details:   details,
		Impact:    impact,
		Kind:      kind,
	}
}

// Log is a fixed-capacity ring of entries. Once full, the oldest entry is
// dropped on every append.
type Log struct {
	mux   *sync.Mutex
	buf   []Entry
	head  int
	count int
}

// New returns an empty log holding at most capacity entries.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Log{mux: &sync.Mutex{}, buf: make([]Entry, capacity)}
}

// Cap is the maximum number of entries retained.
func (l *Log) Cap() int {
	return len(l.buf)
}

// Len is the number of entries currently retained.
func (l *Log) Len() int {
	l.mux.Lock()
	defer l.mux.Unlock()
	return l.count
}

// Append adds e as the most recent entry.
func (l *Log) Append(e Entry) {
	l.mux.Lock()
	defer l.mux.Unlock()
	l.buf[l.head] = e
	l.head = (l.head + 1) % len(l.buf)
	if l.count < len(l.buf) {
		l.count++
	}
}

// Record builds an entry with NewEntry, appends it and returns it.
func (l *Log) Record(kind Kind, action, details, impact string) Entry {
	e := NewEntry(kind, action, details, impact)
	l.Append(e)
	return e
}

// Recent returns a copy of the retained entries, most recent first.
func (l *Log) Recent() []Entry {
	l.mux.Lock()
	defer l.mux.Unlock()
	out := make([]Entry, l.count)
	for i := range out {
		idx := (l.head - 1 - i + len(l.buf)) % len(l.buf)
		out[i] = l.buf[idx]
	}
	return out
}

// Clear removes every entry.
func (l *Log) Clear() {
	l.mux.Lock()
	defer l.mux.Unlock()
	for i := range l.buf {
		l.buf[i] = Entry{}
	}
	l.head = 0
	l.count = 0
}
