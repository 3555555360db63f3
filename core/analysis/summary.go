// Package analysis reduces run metrics to summaries and compares them
// across a sweep.
package analysis

import (
	"fmt"
	"io"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/platoonsim/core/model"
)

// Run holds the metrics of one simulation run.
type Run struct {
	RunID    string
	Scenario model.Scenario
	Steps    []model.StepMetrics
	Global   []model.GlobalSample
	Vehicles []model.VehicleSample
	Platoons []model.PlatoonSample
	Fuel     model.FuelStats
}

// Summarize computes the run summary. Metrics without input are left out.
func Summarize(r Run) model.Summary {
	s := model.Summary{
		RunID:    r.RunID,
		Scenario: r.Scenario,
		Steps:    len(r.Steps),
		Values:   make(map[string]float64),
	}
	if s.Steps == 0 {
		s.Steps = len(r.Global)
	}

	if len(r.Global) > 0 {
		density := make([]float64, len(r.Global))
		flow := make([]float64, len(r.Global))
		for i, g := range r.Global {
			density[i], flow[i] = g.Density, g.Flow
		}
		s.Values[model.KeyAverageDensity] = stat.Mean(density, nil)
		s.Values[model.KeyAverageFlow] = stat.Mean(flow, nil)
	}
	if len(r.Steps) > 0 {
		speed := make([]float64, len(r.Steps))
		for i, m := range r.Steps {
			speed[i] = m.AverageSpeedAllVehicles
		}
		s.Values[model.KeyAverageSpeed] = stat.Mean(speed, nil)
	}

	headway := make([]float64, len(r.Platoons))
	consistency := make([]float64, len(r.Platoons))
	for i, p := range r.Platoons {
		headway[i], consistency[i] = p.AvgHeadway, p.HeadwayConsistency
	}
	if m := Mean(headway); !math.IsNaN(m) {
		s.Values[model.KeyAveragePlatoonHeadway] = m
	}
	if m := Mean(consistency); !math.IsNaN(m) {
		s.Values[model.KeyHeadwayConsistency] = m
	}

	fuel := r.Fuel
	if len(r.Vehicles) > 0 {
		fuel = FuelFromVehicles(r.Vehicles)
	}
	if platoon, regular, ok := fuel.Means(); ok {
		s.Values[model.KeyAvgPlatoonFuel] = platoon
		s.Values[model.KeyAvgRegularFuel] = regular
		if regular != 0 {
			s.Values[model.KeyFuelEfficiencyGain] = (regular - platoon) / regular * 100
		}
	}
	return s
}

// FuelFromVehicles rebuilds fuel statistics from vehicle samples.
func FuelFromVehicles(vs []model.VehicleSample) model.FuelStats {
	var f model.FuelStats
	for _, v := range vs {
		f.Add(v.IsPlatoon, v.FuelConsumption)
	}
	return f
}

// TitleKey turns a summary key into its report label.
func TitleKey(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
		}
	}
	return strings.Join(words, " ")
}

// WriteSummaryText writes the human readable summary report.
func WriteSummaryText(w io.Writer, s model.Summary) error {
	if _, err := io.WriteString(w, "Traffic Metrics Summary\n======================\n\n"); err != nil {
		return err
	}
	for _, k := range model.SummaryKeys {
		v, ok := s.Values[k]
		if !ok {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s: %.4f\n", TitleKey(k), v); err != nil {
			return err
		}
	}
	return nil
}

// Mean returns the mean of the finite values, or NaN when there are none.
func Mean(values []float64) float64 {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return math.NaN()
	}
	return floats.Sum(finite) / float64(len(finite))
}
