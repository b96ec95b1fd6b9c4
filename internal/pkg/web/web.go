// Package web is the HTTP client of the external narrative service that
// writes executive reports and stability predictions.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/ohowland/holarchy/internal/pkg/report"
)

const defaultTimeout = 30 * time.Second

// Handler posts report requests to the narrative service.
type Handler struct {
	config Config
	client *http.Client
}

// Config locates the narrative service.
type Config struct {
	URL       string `json:"URL"`
	TimeoutMs int    `json:"TimeoutMs"`
}

// New reads a JSON config file and returns a Handler for it.
func New(configPath string) (Handler, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return Handler{}, err
	}
	cfg := Config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return Handler{}, err
	}
	return NewFromConfig(cfg), nil
}

// NewFromConfig returns a Handler for cfg.
func NewFromConfig(cfg Config) Handler {
	timeout := defaultTimeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	return Handler{config: cfg, client: &http.Client{Timeout: timeout}}
}

type narrative struct {
	Text string `json:"text"`
}

// Narrate posts req to <URL>/narrate and returns the text of the answer.
func (h Handler) Narrate(ctx context.Context, req report.Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	targetURL := h.config.URL + "/narrate"
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	r.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(r)
	if err != nil {
		log.Println("[Web Handler]", err)
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("narrator %s: %s", targetURL, resp.Status)
	}
	n := narrative{}
	if err := json.NewDecoder(resp.Body).Decode(&n); err != nil {
		return "", err
	}
	return n.Text, nil
}
