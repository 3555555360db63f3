package config

import (
	"errors"

	"github.com/kilianp07/platoonsim/core/model"
	"github.com/kilianp07/platoonsim/core/runner"
	"github.com/kilianp07/platoonsim/infra/traci"
)

// SimulationConfig groups how SUMO is launched, how runs are driven and
// which edges form the measured corridor.
type SimulationConfig struct {
	SUMO     traci.Config   `json:"sumo"`
	Run      runner.Config  `json:"run"`
	Corridor model.Corridor `json:"corridor"`
}

// SetDefaults fills the launcher and run defaults. An empty corridor
// selects the Fairfax County Parkway edges.
func (c *SimulationConfig) SetDefaults() {
	c.SUMO.SetDefaults()
	c.Run.SetDefaults()
	if c.Corridor.Empty() {
		c.Corridor = model.DefaultCorridor()
	}
}

// Validate checks the launcher and run settings.
func (c SimulationConfig) Validate() error {
	if err := c.SUMO.Validate(); err != nil {
		return err
	}
	if err := c.Run.Validate(); err != nil {
		return err
	}
	if c.Corridor.Empty() {
		return errors.New("corridor has no edges")
	}
	return nil
}
