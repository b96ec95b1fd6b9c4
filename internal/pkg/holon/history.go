package holon

import (
	"encoding/json"
	"time"
)

// DefaultHistoryCap is the number of readings retained per holon.
const DefaultHistoryCap = 60

// Reading is the settled energy flow of a holon for one tick, in kW.
type Reading struct {
	Timestamp   time.Time `json:"timestamp"`
	Production  float64   `json:"production"`
	Consumption float64   `json:"consumption"`
	Storage     float64   `json:"storage"`
	Net         float64   `json:"net"`
}

// History is a fixed capacity ring of readings. Once full, each push evicts
// the oldest reading.
type History struct {
	buf   []Reading
	head  int
	count int
}

// NewHistory returns an empty history holding at most capacity readings.
func NewHistory(capacity int) History {
	if capacity < 1 {
		capacity = DefaultHistoryCap
	}
	return History{buf: make([]Reading, capacity)}
}

// Cap is the maximum number of retained readings.
func (h History) Cap() int {
	return len(h.buf)
}

// Len is the number of retained readings.
func (h History) Len() int {
	return h.count
}

// Push appends r, evicting the oldest reading when full.
func (h *History) Push(r Reading) {
	if len(h.buf) == 0 {
		h.buf = make([]Reading, DefaultHistoryCap)
	}
	tail := (h.head + h.count) % len(h.buf)
	h.buf[tail] = r
	if h.count < len(h.buf) {
		h.count++
		return
	}
	h.head = (h.head + 1) % len(h.buf)
}

// Latest returns the most recent reading.
func (h History) Latest() (Reading, bool) {
	if h.count == 0 {
		return Reading{}, false
	}
	return h.buf[(h.head+h.count-1)%len(h.buf)], true
}

// Readings returns the retained readings, oldest first.
func (h History) Readings() []Reading {
	out := make([]Reading, 0, h.count)
	for i := 0; i < h.count; i++ {
		out = append(out, h.buf[(h.head+i)%len(h.buf)])
	}
	return out
}

// Clone returns an independent copy.
func (h History) Clone() History {
	c := History{buf: make([]Reading, len(h.buf)), head: h.head, count: h.count}
	copy(c.buf, h.buf)
	return c
}

// Averages returns the mean production, consumption and net over the retained readings.
func (h History) Averages() (production, consumption, net float64) {
	if h.count == 0 {
		return 0, 0, 0
	}
	for _, r := range h.Readings() {
		production += r.Production
		consumption += r.Consumption
		net += r.Net
	}
	n := float64(h.count)
	return production / n, consumption / n, net / n
}

// MarshalJSON encodes the history as a chronological array.
func (h History) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Readings())
}

// UnmarshalJSON decodes a chronological array. The capacity is kept when
// already set and only the newest readings that fit are retained. A zero
// History grows to hold every reading, and at least DefaultHistoryCap.
func (h *History) UnmarshalJSON(data []byte) error {
	var readings []Reading
	if err := json.Unmarshal(data, &readings); err != nil {
		return err
	}
	capacity := len(h.buf)
	if capacity == 0 {
		capacity = DefaultHistoryCap
		if len(readings) > capacity {
			capacity = len(readings)
		}
	}
	*h = NewHistory(capacity)
	for _, r := range readings {
		h.Push(r)
	}
	return nil
}

// Resize returns a copy of h with a new capacity, keeping the newest readings.
func (h History) Resize(capacity int) History {
	out := NewHistory(capacity)
	for _, r := range h.Readings() {
		out.Push(r)
	}
	return out
}
