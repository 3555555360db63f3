package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/platoonsim/core/model"
)

// Plan is a YAML sweep description. Explicit scenarios are appended after
// the grid expansion.
type Plan struct {
	Name      string           `yaml:"name"`
	Grid      Grid             `yaml:",inline"`
	Scenarios []model.Scenario `yaml:"scenarios,omitempty"`
}

// LoadPlan reads a sweep plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Expand returns the validated, de-duplicated scenario list of the plan.
func (p Plan) Expand() ([]model.Scenario, error) {
	all := append(p.Grid.Scenarios(), p.Scenarios...)
	seen := make(map[model.Scenario]bool, len(all))
	out := make([]model.Scenario, 0, len(all))
	for _, s := range all {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("plan %s: %w", p.Name, err)
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("plan %s defines no scenarios", p.Name)
	}
	return out, nil
}

// Scenarios resolves the scenario list of the configuration: the plan file
// when set, the configured grid otherwise.
func (c Config) Scenarios() ([]model.Scenario, error) {
	if c.PlanFile != "" {
		p, err := LoadPlan(c.PlanFile)
		if err != nil {
			return nil, fmt.Errorf("load plan: %w", err)
		}
		return p.Expand()
	}
	g, err := c.Grid()
	if err != nil {
		return nil, err
	}
	return Plan{Name: "config", Grid: g}.Expand()
}
