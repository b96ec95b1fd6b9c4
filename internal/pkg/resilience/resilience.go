// Package resilience scores how well the grid-connected part of a holarchy
// covers its own demand.
package resilience

import (
	"math"

	"github.com/ohowland/holarchy/internal/pkg/holon"
)

// storageWeight is the share of stored energy credited towards demand.
const storageWeight = 0.15

// Breakdown is the input and result of a resilience assessment.
type Breakdown struct {
	Score           int     `json:"score"`
	TotalProduction float64 `json:"totalProduction"`
	TotalDemand     float64 `json:"totalDemand"`
	StorageLevel    float64 `json:"storageLevel"`
	Connected       int     `json:"connected"`
	Islanded        int     `json:"islanded"`
}

// Connected returns the ids of the root and of every holon whose parent chain
// reaches the root.
func Connected(holons []*holon.Holon) map[string]bool {
	children := make(map[string][]string, len(holons))
	hasRoot := false
	for _, h := range holons {
		if h.IsRoot() {
			hasRoot = true
			continue
		}
		if h.ParentID != "" {
			children[h.ParentID] = append(children[h.ParentID], h.ID)
		}
	}

	connected := make(map[string]bool, len(holons))
	if !hasRoot {
		return connected
	}
	queue := []string{holon.RootID}
	connected[holon.RootID] = true
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range children[id] {
			if connected[child] {
				continue
			}
			connected[child] = true
			queue = append(queue, child)
		}
	}
	return connected
}

// Assess computes the breakdown from each connected holon's latest reading.
// Every connected holon adds its consumption to demand. Only operational
// holons add production, and only operational storage adds its level.
func Assess(holons []*holon.Holon) Breakdown {
	connected := Connected(holons)
	var b Breakdown
	for _, h := range holons {
		if !connected[h.ID] {
			b.Islanded++
			continue
		}
		b.Connected++
		last, ok := h.History.Latest()
		if !ok {
			continue
		}
		b.TotalDemand += last.Consumption
		if !h.Operational() {
			continue
		}
		switch {
		case h.Type.Produces():
			b.TotalProduction += last.Production
		case h.Type == holon.Storage:
			b.TotalProduction += last.Production
			b.StorageLevel += last.Storage
		}
	}
	b.Score = score(b.TotalProduction, b.TotalDemand, b.StorageLevel)
	return b
}

// Score is shorthand for Assess(holons).Score.
func Score(holons []*holon.Holon) int {
	return Assess(holons).Score
}

func score(production, demand, storage float64) int {
	if demand == 0 {
		return 100
	}
	ratio := (production + storage*storageWeight) / demand
	return int(math.Round(math.Min(100, ratio*100)))
}
