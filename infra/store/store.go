// Package store persists run summaries so that sweeps can be compared
// across invocations.
package store

import (
	"context"
	"fmt"
	"math"

	"github.com/kilianp07/platoonsim/core/model"
)

// Config selects the summary store backend.
type Config struct {
	// Backend is "sqlite", "memory" or "none".
	Backend string `json:"backend"`
	// Path is the SQLite database file.
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "sqlite"
	}
	if c.Path == "" {
		c.Path = "platoonsim.db"
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	switch c.Backend {
	case "sqlite":
		if c.Path == "" {
			return fmt.Errorf("store path is required")
		}
	case "memory", "none":
	default:
		return fmt.Errorf("unknown store backend %s", c.Backend)
	}
	return nil
}

// Filter restricts a summary query. Zero fields match everything.
type Filter struct {
	Traffic     model.TrafficType
	PlatoonSize int
	NumPlatoons int
}

func (f Filter) match(s model.Summary) bool {
	if f.Traffic != "" && s.Scenario.Traffic != f.Traffic {
		return false
	}
	if f.PlatoonSize != 0 && s.Scenario.PlatoonSize != f.PlatoonSize {
		return false
	}
	if f.NumPlatoons != 0 && s.Scenario.NumPlatoons != f.NumPlatoons {
		return false
	}
	return true
}

// Store saves and queries run summaries.
type Store interface {
	SaveSummary(ctx context.Context, s model.Summary) error
	Summaries(ctx context.Context, f Filter) ([]model.Summary, error)
	Close() error
}

// New opens the store selected by cfg. The "none" backend returns nil.
func New(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "sqlite":
		s, err := NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return NewMemoryStore(), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown store backend %s", cfg.Backend)
	}
}

// finite drops NaN and infinite values, which cannot be serialized.
func finite(values map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	for k, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[k] = v
		}
	}
	return out
}
