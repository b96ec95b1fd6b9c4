// Package report builds the de-identified payloads handed to the narrative
// collaborator and maps its failures onto fixed strings.
package report

import (
	"context"
	"log"

	"github.com/ohowland/holarchy/internal/pkg/holon"
)

// Fixed texts returned in place of a narrative.
const (
	FailedReport          = "Failed to generate report."
	ServiceError          = "Error communicating with AI service."
	AssessmentUnavailable = "Assessment unavailable."
	PredictionUnavailable = "Unable to predict impact at this time."
)

// Kind selects the narrative requested.
type Kind string

const (
	Executive Kind = "REPORT"
	Stability Kind = "WHAT_IF"
)

// HolonSummary is the numeric summary of one holon over its retained history.
type HolonSummary struct {
	Name               string       `json:"name"`
	Type               holon.Type   `json:"type"`
	AverageProduction  float64      `json:"avgProduction"`
	AverageConsumption float64      `json:"avgConsumption"`
	Status             holon.Status `json:"status"`
	ParentID           string       `json:"parentId"`
}

// Summarize returns one summary per holon, in order.
func Summarize(holons []holon.Holon) []HolonSummary {
	out := make([]HolonSummary, len(holons))
	for i, h := range holons {
		p, c, _ := h.History.Averages()
		out[i] = HolonSummary{
			Name:               h.Name,
			Type:               h.Type,
			AverageProduction:  p,
			AverageConsumption: c,
			Status:             h.Status,
			ParentID:           h.ParentID,
		}
	}
	return out
}

// NodeContext is the grid context line of a what-if request.
type NodeContext struct {
	Name   string       `json:"name"`
	Type   holon.Type   `json:"type"`
	Status holon.Status `json:"status"`
}

// WhatIf describes a proposed reparent for the stability predictor.
type WhatIf struct {
	Holon     string        `json:"holon"`
	Type      holon.Type    `json:"type"`
	Capacity  float64       `json:"capacity"`
	OldParent string        `json:"oldParent"`
	NewParent string        `json:"newParent"`
	Context   []NodeContext `json:"context"`
}

// NewWhatIf builds the request for moving h from oldParent to newParent,
// both given as display names.
func NewWhatIf(h holon.Holon, oldParent, newParent string, all []holon.Holon) WhatIf {
	ctx := make([]NodeContext, len(all))
	for i, n := range all {
		ctx[i] = NodeContext{Name: n.Name, Type: n.Type, Status: n.Status}
	}
	return WhatIf{
		Holon:     h.Name,
		Type:      h.Type,
		Capacity:  h.BaseCapacity,
		OldParent: oldParent,
		NewParent: newParent,
		Context:   ctx,
	}
}

// Request is the sole payload sent to a Narrator.
type Request struct {
	Kind    Kind           `json:"kind"`
	Summary []HolonSummary `json:"summary,omitempty"`
	WhatIf  *WhatIf        `json:"whatIf,omitempty"`
}

// Narrator turns a request into human readable text.
type Narrator interface {
	Narrate(ctx context.Context, req Request) (string, error)
}

// Generate asks n for an executive report on summary. It never fails; errors
// and empty answers are replaced by fixed texts.
func Generate(ctx context.Context, n Narrator, summary []HolonSummary) string {
	text, err := n.Narrate(ctx, Request{Kind: Executive, Summary: summary})
	if err != nil {
		log.Println("[Report] narrator error:", err)
		return ServiceError
	}
	if text == "" {
		return FailedReport
	}
	return text
}

// Predict asks n for the stability impact of w. It never fails.
func Predict(ctx context.Context, n Narrator, w WhatIf) string {
	text, err := n.Narrate(ctx, Request{Kind: Stability, WhatIf: &w})
	if err != nil {
		log.Println("[Report] predictor error:", err)
		return PredictionUnavailable
	}
	if text == "" {
		return AssessmentUnavailable
	}
	return text
}
