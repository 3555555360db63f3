package scenario

import (
	"fmt"

	"github.com/kilianp07/platoonsim/core/model"
)

// Config controls scenario file generation.
type Config struct {
	// OutputDir receives the routes, sumocfg and simpla files.
	OutputDir string `json:"output_dir"`
	// NetFile is the SUMO network the scenarios run on.
	NetFile string `json:"net_file"`
	// AdditionalFiles are referenced from every sumocfg. Nil selects the
	// default polygon file, an empty list disables it.
	AdditionalFiles []string `json:"additional_files"`
	// PlanFile optionally replaces the grid below with a YAML plan.
	PlanFile string `json:"plan_file"`

	PlatoonSizes []int    `json:"platoon_sizes"`
	NumPlatoons  []int    `json:"num_platoons"`
	TrafficTypes []string `json:"traffic_types"`

	SpeedLimit        float64 `json:"speed_limit"`
	PlatoonSpacing    int     `json:"platoon_spacing"`
	Begin             int     `json:"begin"`
	End               int     `json:"end"`
	LightPeriod       float64 `json:"light_period"`
	HeavyPeriod       float64 `json:"heavy_period"`
	LateralResolution float64 `json:"lateral_resolution"`
	Seed              int     `json:"seed"`
}

// SetDefaults fills unset values with the reference sweep settings.
func (c *Config) SetDefaults() {
	if c.OutputDir == "" {
		c.OutputDir = "auto_generated_configs"
	}
	if c.NetFile == "" {
		c.NetFile = "osm/osm.net.xml"
	}
	if c.AdditionalFiles == nil {
		c.AdditionalFiles = []string{"osm/osm.poly.xml.gz"}
	}
	if len(c.PlatoonSizes) == 0 {
		c.PlatoonSizes = []int{2, 4, 6}
	}
	if len(c.NumPlatoons) == 0 {
		c.NumPlatoons = []int{10, 25, 40}
	}
	if len(c.TrafficTypes) == 0 {
		c.TrafficTypes = []string{string(model.TrafficLight), string(model.TrafficHeavy)}
	}
	if c.SpeedLimit == 0 {
		c.SpeedLimit = 22.352
	}
	if c.PlatoonSpacing == 0 {
		c.PlatoonSpacing = 40
	}
	if c.End == 0 {
		c.End = 3600
	}
	if c.LightPeriod == 0 {
		c.LightPeriod = 12
	}
	if c.HeavyPeriod == 0 {
		c.HeavyPeriod = 2
	}
	if c.LateralResolution == 0 {
		c.LateralResolution = 0.13
	}
	if c.Seed == 0 {
		c.Seed = 23423
	}
}

// Validate checks the generation settings.
func (c Config) Validate() error {
	if c.SpeedLimit <= 0 {
		return fmt.Errorf("speed_limit must be positive")
	}
	if c.End <= c.Begin {
		return fmt.Errorf("end (%d) must be after begin (%d)", c.End, c.Begin)
	}
	if c.LightPeriod <= 0 || c.HeavyPeriod <= 0 {
		return fmt.Errorf("flow periods must be positive")
	}
	if _, err := c.Grid(); err != nil {
		return err
	}
	return nil
}

// Grid returns the sweep grid described by the configuration.
func (c Config) Grid() (Grid, error) {
	g := Grid{PlatoonSizes: c.PlatoonSizes, NumPlatoons: c.NumPlatoons}
	for _, t := range c.TrafficTypes {
		tt, err := model.ParseTrafficType(t)
		if err != nil {
			return Grid{}, err
		}
		g.Traffic = append(g.Traffic, tt)
	}
	return g, nil
}
