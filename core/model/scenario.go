package model

import "fmt"

// TrafficType selects the background traffic generated around the platoons.
type TrafficType string

const (
	TrafficLight       TrafficType = "light_traffic"
	TrafficHeavy       TrafficType = "heavy_traffic"
	TrafficPlatoonOnly TrafficType = "platoon_only"
)

// ParseTrafficType validates a traffic type name.
func ParseTrafficType(s string) (TrafficType, error) {
	switch t := TrafficType(s); t {
	case TrafficLight, TrafficHeavy, TrafficPlatoonOnly:
		return t, nil
	default:
		return "", fmt.Errorf("unknown traffic type %q", s)
	}
}

// String returns the traffic type name.
func (t TrafficType) String() string { return string(t) }

// Scenario is one point of a platoon sweep.
type Scenario struct {
	PlatoonSize int         `json:"platoon_size" yaml:"platoon_size"`
	NumPlatoons int         `json:"num_platoons" yaml:"num_platoons"`
	Traffic     TrafficType `json:"traffic" yaml:"traffic"`
}

// Name identifies the scenario in file and directory names.
func (s Scenario) Name() string {
	return fmt.Sprintf("ps%d_np%d_traffic_%s", s.PlatoonSize, s.NumPlatoons, s.Traffic)
}

// Validate checks that the scenario parameters are usable.
func (s Scenario) Validate() error {
	if s.PlatoonSize < 1 {
		return fmt.Errorf("platoon size must be positive, got %d", s.PlatoonSize)
	}
	if s.NumPlatoons < 0 {
		return fmt.Errorf("number of platoons must not be negative, got %d", s.NumPlatoons)
	}
	if _, err := ParseTrafficType(string(s.Traffic)); err != nil {
		return err
	}
	return nil
}

// PlatoonVehicles returns the number of trucks released in platoon flows.
func (s Scenario) PlatoonVehicles() int { return s.PlatoonSize * s.NumPlatoons }
