package scenario

import "github.com/kilianp07/platoonsim/core/model"

// Grid is a sweep over platoon sizes, platoon counts and traffic types.
type Grid struct {
	PlatoonSizes []int               `json:"sizes" yaml:"sizes"`
	NumPlatoons  []int               `json:"platoons" yaml:"platoons"`
	Traffic      []model.TrafficType `json:"traffic" yaml:"traffic"`
}

// DefaultGrid is the reference 3x3x2 sweep.
func DefaultGrid() Grid {
	return Grid{
		PlatoonSizes: []int{2, 4, 6},
		NumPlatoons:  []int{10, 25, 40},
		Traffic:      []model.TrafficType{model.TrafficLight, model.TrafficHeavy},
	}
}

// Scenarios expands the grid, sizes outermost and traffic innermost.
func (g Grid) Scenarios() []model.Scenario {
	out := make([]model.Scenario, 0, len(g.PlatoonSizes)*len(g.NumPlatoons)*len(g.Traffic))
	for _, ps := range g.PlatoonSizes {
		for _, np := range g.NumPlatoons {
			for _, t := range g.Traffic {
				out = append(out, model.Scenario{PlatoonSize: ps, NumPlatoons: np, Traffic: t})
			}
		}
	}
	return out
}
