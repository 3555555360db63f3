package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/platoonsim/core/collect"
	"github.com/kilianp07/platoonsim/core/metrics"
	"github.com/kilianp07/platoonsim/core/scenario"
	"github.com/kilianp07/platoonsim/core/signal"
	"github.com/kilianp07/platoonsim/infra/journal"
	"github.com/kilianp07/platoonsim/infra/mqtt"
	"github.com/kilianp07/platoonsim/infra/store"
)

// EnvPrefix marks environment variables that override file values.
// K_SIMULATION__RUN__MAX_STEPS=600 sets simulation.run.max_steps.
const EnvPrefix = "K_"

type Config struct {
	Scenario   scenario.Config  `json:"scenario"`
	Simulation SimulationConfig `json:"simulation"`
	Signals    signal.Config    `json:"signals"`
	Collect    collect.Config   `json:"collect"`
	Analysis   AnalysisConfig   `json:"analysis"`
	Metrics    metrics.Config   `json:"metrics"`
	Journal    journal.Config   `json:"journal"`
	Store      store.Config     `json:"store"`
	MQTT       mqtt.Config      `json:"mqtt"`
	Sentry     SentryConfig     `json:"sentry"`
	Logging    LoggingConfig    `json:"logging"`
}

// Load reads the configuration file at path, applies K_ environment
// overrides, then defaults, and validates every section.
func Load(path string) (*Config, error) {
	parser, err := parserFor(path)
	if err != nil {
		return nil, err
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	return load(k)
}

// LoadOptional behaves like Load but falls back to defaults and environment
// overrides when path does not exist.
func LoadOptional(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return load(koanf.New("."))
	}
	return Load(path)
}

func parserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
}

func load(k *koanf.Koanf) (*Config, error) {
	// Optional environment overrides
	if err := k.Load(env.Provider(EnvPrefix, "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.SetDefaults()
	return &cfg
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Scenario.SetDefaults()
	c.Simulation.SetDefaults()
	c.Signals.SetDefaults()
	c.Collect.SetDefaults()
	c.Analysis.SetDefaults(c.Simulation.Run.OutputDir)
	c.Metrics.SetDefaults()
	c.Simulation.Run.StepInterval = c.Metrics.StepInterval
	c.Journal.SetDefaults()
	c.Store.SetDefaults()
	if c.MQTT.Enabled() {
		c.MQTT.SetDefaults()
	}
	c.Logging.SetDefaults()
}

// Validate checks every section and names the failing one.
func (c *Config) Validate() error {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"scenario", c.Scenario.Validate},
		{"simulation", c.Simulation.Validate},
		{"signals", c.Signals.Validate},
		{"collect", c.Collect.Validate},
		{"analysis", c.Analysis.Validate},
		{"metrics", c.Metrics.Validate},
		{"journal", c.Journal.Validate},
		{"store", c.Store.Validate},
		{"mqtt", c.MQTT.Validate},
		{"logging", c.Logging.Validate},
	}
	for _, ch := range checks {
		if err := ch.fn(); err != nil {
			return fmt.Errorf("%s: %w", ch.name, err)
		}
	}
	return nil
}
