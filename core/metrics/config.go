package metrics

import (
	"errors"

	"github.com/kilianp07/platoonsim/core/factory"
)

// Config defines the metrics sinks and how often step metrics are sent.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// StepInterval forwards one step out of every StepInterval.
	StepInterval int `json:"step_interval"`
	// PrometheusAddr serves /metrics when set.
	PrometheusAddr string `json:"prometheus_addr"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.StepInterval == 0 {
		c.StepInterval = 10
	}
}

// Validate checks the sink list.
func (c Config) Validate() error {
	if c.StepInterval < 0 {
		return errors.New("metrics step_interval must not be negative")
	}
	for _, s := range c.Sinks {
		if s.Type == "" {
			return errors.New("metrics sink without type")
		}
	}
	return nil
}
