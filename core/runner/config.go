package runner

import "errors"

// Config controls how scenario runs are executed.
type Config struct {
	// ConfigDir holds the generated sumocfg files.
	ConfigDir string `json:"config_dir"`
	// OutputDir receives one sub-directory per run.
	OutputDir string `json:"output_dir"`
	// MaxSteps bounds the number of simulation steps of a run.
	MaxSteps int `json:"max_steps"`
	// StopWhenEmpty ends a run once no vehicle is left or expected.
	StopWhenEmpty bool `json:"stop_when_empty"`
	// MaxParallel bounds the number of simulators running at once.
	MaxParallel int `json:"max_parallel"`
	// ProgressEvery publishes a progress event every N steps.
	ProgressEvery int `json:"progress_every"`
	// StepInterval forwards one step out of every StepInterval to the
	// metrics sink.
	StepInterval int `json:"-"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.ConfigDir == "" {
		c.ConfigDir = "auto_generated_configs"
	}
	if c.OutputDir == "" {
		c.OutputDir = "simulation_metrics"
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = 3600
	}
	if c.MaxParallel == 0 {
		c.MaxParallel = 1
	}
	if c.ProgressEvery == 0 {
		c.ProgressEvery = 100
	}
	if c.StepInterval == 0 {
		c.StepInterval = 10
	}
}

// Validate checks the run settings.
func (c Config) Validate() error {
	if c.MaxSteps < 1 {
		return errors.New("max_steps must be positive")
	}
	if c.MaxParallel < 1 {
		return errors.New("max_parallel must be positive")
	}
	if c.ProgressEvery < 1 {
		return errors.New("progress_every must be positive")
	}
	return nil
}
