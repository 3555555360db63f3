package config

// AnalysisConfig controls post-processing of run outputs.
type AnalysisConfig struct {
	// InputDir holds one directory per run. It defaults to the run output
	// directory.
	InputDir   string `json:"input_dir"`
	SkipCharts bool   `json:"skip_charts"`
}

// SetDefaults points the analysis at runOutput when no input is set.
func (c *AnalysisConfig) SetDefaults(runOutput string) {
	if c.InputDir == "" {
		c.InputDir = runOutput
	}
}

func (c AnalysisConfig) Validate() error { return nil }
