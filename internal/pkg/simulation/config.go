package simulation

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ohowland/holarchy/internal/pkg/audit"
	"github.com/ohowland/holarchy/internal/pkg/holon"
)

const defaultBaseInterval = 1000

// Config holds the static parameters of a simulation.
type Config struct {
	BaseIntervalMs int          `json:"BaseIntervalMs"`
	HistoryCap     int          `json:"HistoryCap"`
	AuditCap       int          `json:"AuditCap"`
	Seed           int64        `json:"Seed"`
	Topology       []holon.Spec `json:"Topology"`
}

// NewConfig reads a JSON config file. Omitted fields take their defaults.
func NewConfig(configPath string) (Config, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return Config{}, fmt.Errorf("simulation config %s: %w", configPath, err)
	}
	return cfg.withDefaults(), nil
}

// DefaultConfig is the built-in district holarchy at one tick per second.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.BaseIntervalMs <= 0 {
		c.BaseIntervalMs = defaultBaseInterval
	}
	if c.HistoryCap <= 0 {
		c.HistoryCap = holon.DefaultHistoryCap
	}
	if c.AuditCap <= 0 {
		c.AuditCap = audit.DefaultCap
	}
	if len(c.Topology) == 0 {
		c.Topology = holon.InitialTopology()
	}
	return c
}

// BaseInterval is the tick period at speed 1.
func (c Config) BaseInterval() time.Duration {
	return time.Duration(c.BaseIntervalMs) * time.Millisecond
}
