package model

// StepMetrics holds the corridor metrics written once per simulation step.
type StepMetrics struct {
	Step                    int
	NumVehicles             int
	AvgGapNorthbound        float64
	NorthboundFlow          int
	SouthboundFlow          int
	NorthboundSpeed         float64
	SouthboundSpeed         float64
	AverageSpeedAllVehicles float64
}

// GlobalSample is the network-wide density and flow at a step.
type GlobalSample struct {
	Step        int
	NumVehicles int
	Density     float64 // vehicles/km
	Flow        float64 // vehicles/h
}

// PlatoonSample describes one platoon at one step. Headway fields are NaN
// when no follower had a measurable time gap.
type PlatoonSample struct {
	Step               int
	PlatoonID          string
	Size               int
	AvgHeadway         float64
	StdHeadway         float64
	HeadwayConsistency float64
	AvgFuel            float64
}

// Summary keys, in the order they are reported.
const (
	KeyAverageDensity        = "average_density"
	KeyAverageFlow           = "average_flow"
	KeyAverageSpeed          = "average_speed"
	KeyAveragePlatoonHeadway = "average_platoon_headway"
	KeyHeadwayConsistency    = "headway_consistency"
	KeyAvgPlatoonFuel        = "avg_platoon_fuel_consumption"
	KeyAvgRegularFuel        = "avg_regular_fuel_consumption"
	KeyFuelEfficiencyGain    = "fuel_efficiency_gain_percent"
)

// SummaryKeys lists every key a Summary may contain.
var SummaryKeys = []string{
	KeyAverageDensity,
	KeyAverageFlow,
	KeyAverageSpeed,
	KeyAveragePlatoonHeadway,
	KeyHeadwayConsistency,
	KeyAvgPlatoonFuel,
	KeyAvgRegularFuel,
	KeyFuelEfficiencyGain,
}

// Summary is the reduced result of one run. Keys absent from Values were
// not computable for the run.
type Summary struct {
	RunID    string             `json:"run_id"`
	Scenario Scenario           `json:"scenario"`
	Steps    int                `json:"steps"`
	Values   map[string]float64 `json:"values"`
}

// Value returns the metric and whether it was computed.
func (s Summary) Value(key string) (float64, bool) {
	v, ok := s.Values[key]
	return v, ok
}

// FuelStats accumulates per-vehicle fuel readings split into platoon and
// regular vehicles.
type FuelStats struct {
	PlatoonSum   float64 `json:"platoon_sum"`
	PlatoonCount int     `json:"platoon_count"`
	RegularSum   float64 `json:"regular_sum"`
	RegularCount int     `json:"regular_count"`
}

// Add records one reading.
func (f *FuelStats) Add(isPlatoon bool, fuel float64) {
	if isPlatoon {
		f.PlatoonSum += fuel
		f.PlatoonCount++
		return
	}
	f.RegularSum += fuel
	f.RegularCount++
}

// Means returns the mean fuel of both groups. ok is false unless both
// groups have readings.
func (f FuelStats) Means() (platoon, regular float64, ok bool) {
	if f.PlatoonCount == 0 || f.RegularCount == 0 {
		return 0, 0, false
	}
	return f.PlatoonSum / float64(f.PlatoonCount), f.RegularSum / float64(f.RegularCount), true
}
