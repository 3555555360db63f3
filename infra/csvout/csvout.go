// Package csvout writes and reads the per-run CSV files, the run summary
// JSON and the sweep comparison table.
package csvout

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kilianp07/platoonsim/core/analysis"
	"github.com/kilianp07/platoonsim/core/model"
)

// File names inside a run directory.
const (
	StepMetricsFile = "simulation_metrics.csv"
	GlobalFile      = "global_metrics.csv"
	VehicleFile     = "vehicle_data.csv"
	PlatoonFile     = "platoon_data.csv"
	FuelFile        = "fuel_stats.json"
	SummaryFile     = "summary.json"
)

var (
	stepHeader = []string{
		"step", "num_vehicles", "avg_intervehicular_distance_northbound",
		"northbound_flow", "southbound_flow", "northbound_speed",
		"southbound_speed", "average_speed_all_vehicles",
	}
	globalHeader  = []string{"time_step", "num_vehicles", "density", "flow"}
	vehicleHeader = []string{
		"time_step", "vehicle_id", "is_platoon", "platoon_role", "platoon_id",
		"position_x", "position_y", "speed", "acceleration", "road_id",
		"lane_id", "distance", "fuel_consumption", "co2_emission",
		"leader_id", "leader_distance",
	}
	platoonHeader = []string{
		"time_step", "platoon_id", "platoon_size", "avg_headway",
		"std_headway", "headway_consistency", "avg_fuel_consumption",
	}
)

// Writer implements the run output and sweep table writers over CSV files.
type Writer struct{}

func ftoa(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func itoa(v int) string { return strconv.Itoa(v) }

// writeTable creates path and writes the header followed by n rows.
func writeTable(path string, header []string, n int, row func(i int) []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	for i := 0; i < n; i++ {
		if err := w.Write(row(i)); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteRun writes the metric files of r into dir. The vehicle and platoon
// files are only written when rows were collected.
func (Writer) WriteRun(dir string, r analysis.Run) error {
	err := writeTable(filepath.Join(dir, StepMetricsFile), stepHeader, len(r.Steps), func(i int) []string {
		m := r.Steps[i]
		return []string{
			itoa(m.Step), itoa(m.NumVehicles), ftoa(m.AvgGapNorthbound),
			itoa(m.NorthboundFlow), itoa(m.SouthboundFlow), ftoa(m.NorthboundSpeed),
			ftoa(m.SouthboundSpeed), ftoa(m.AverageSpeedAllVehicles),
		}
	})
	if err != nil {
		return fmt.Errorf("%s: %w", StepMetricsFile, err)
	}
	err = writeTable(filepath.Join(dir, GlobalFile), globalHeader, len(r.Global), func(i int) []string {
		g := r.Global[i]
		return []string{itoa(g.Step), itoa(g.NumVehicles), ftoa(g.Density), ftoa(g.Flow)}
	})
	if err != nil {
		return fmt.Errorf("%s: %w", GlobalFile, err)
	}
	if len(r.Vehicles) > 0 {
		err = writeTable(filepath.Join(dir, VehicleFile), vehicleHeader, len(r.Vehicles), func(i int) []string {
			v := r.Vehicles[i]
			return []string{
				itoa(v.Step), v.VehicleID, strconv.FormatBool(v.IsPlatoon), string(v.Role), v.PlatoonID,
				ftoa(v.X), ftoa(v.Y), ftoa(v.Speed), ftoa(v.Acceleration), v.RoadID,
				v.LaneID, ftoa(v.Distance), ftoa(v.FuelConsumption), ftoa(v.CO2Emission),
				v.LeaderID, ftoa(v.LeaderDistance),
			}
		})
		if err != nil {
			return fmt.Errorf("%s: %w", VehicleFile, err)
		}
	}
	if len(r.Platoons) > 0 {
		err = writeTable(filepath.Join(dir, PlatoonFile), platoonHeader, len(r.Platoons), func(i int) []string {
			p := r.Platoons[i]
			return []string{
				itoa(p.Step), p.PlatoonID, itoa(p.Size), ftoa(p.AvgHeadway),
				ftoa(p.StdHeadway), ftoa(p.HeadwayConsistency), ftoa(p.AvgFuel),
			}
		})
		if err != nil {
			return fmt.Errorf("%s: %w", PlatoonFile, err)
		}
	}
	return writeJSON(filepath.Join(dir, FuelFile), r.Fuel)
}

// WriteSummary writes summary.json into dir. Non-finite values are left
// out because JSON cannot represent them.
func (Writer) WriteSummary(dir string, s model.Summary) error {
	out := s
	out.Values = make(map[string]float64, len(s.Values))
	for k, v := range s.Values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out.Values[k] = v
		}
	}
	return writeJSON(filepath.Join(dir, SummaryFile), out)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// ReadSummary loads summary.json from dir.
func ReadSummary(dir string) (model.Summary, error) {
	var s model.Summary
	data, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	if err != nil {
		return s, err
	}
	err = json.Unmarshal(data, &s)
	return s, err
}

// WriteSweep writes one row per summary with the scenario parameters
// followed by every summary key. Missing values are left empty.
func (Writer) WriteSweep(path string, summaries []model.Summary) error {
	header := append([]string{"scenario", "platoon_size", "num_platoons", "traffic_type", "steps"}, model.SummaryKeys...)
	return writeTable(path, header, len(summaries), func(i int) []string {
		s := summaries[i]
		row := []string{
			s.Scenario.Name(), itoa(s.Scenario.PlatoonSize), itoa(s.Scenario.NumPlatoons),
			s.Scenario.Traffic.String(), itoa(s.Steps),
		}
		for _, k := range model.SummaryKeys {
			if v, ok := s.Value(k); ok {
				row = append(row, ftoa(v))
			} else {
				row = append(row, "")
			}
		}
		return row
	})
}

// table is a parsed CSV file addressed by column name.
type table struct {
	cols map[string]int
	rows [][]string
}

func readTable(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: missing header", filepath.Base(path))
		}
		return nil, err
	}
	t := &table{cols: make(map[string]int, len(header))}
	for i, h := range header {
		t.cols[h] = i
	}
	t.rows, err = r.ReadAll()
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (t *table) require(names ...string) error {
	for _, n := range names {
		if _, ok := t.cols[n]; !ok {
			return fmt.Errorf("missing column %q", n)
		}
	}
	return nil
}

// cursor reads typed cells of one row and keeps the first error.
type cursor struct {
	t   *table
	row []string
	err error
}

func (c *cursor) str(name string) string { return c.row[c.t.cols[name]] }

func (c *cursor) int(name string) int {
	v, err := strconv.Atoi(c.str(name))
	if err != nil && c.err == nil {
		c.err = fmt.Errorf("column %s: %w", name, err)
	}
	return v
}

func (c *cursor) float(name string) float64 {
	s := c.str(name)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && c.err == nil {
		c.err = fmt.Errorf("column %s: %w", name, err)
	}
	return v
}

func (c *cursor) bool(name string) bool {
	v, err := strconv.ParseBool(c.str(name))
	if err != nil && c.err == nil {
		c.err = fmt.Errorf("column %s: %w", name, err)
	}
	return v
}

// each parses every row with fn, reporting the first conversion error with
// its line number.
func (t *table) each(fn func(c *cursor)) error {
	for i, row := range t.rows {
		c := &cursor{t: t, row: row}
		fn(c)
		if c.err != nil {
			return fmt.Errorf("line %d: %w", i+2, c.err)
		}
	}
	return nil
}

// ReadRun loads the metric files of a run directory. The step metrics file
// is required; the others are optional.
func (Writer) ReadRun(dir string) (analysis.Run, error) {
	var r analysis.Run
	steps, err := readTable(filepath.Join(dir, StepMetricsFile))
	if err != nil {
		return r, err
	}
	if err := steps.require(stepHeader...); err != nil {
		return r, fmt.Errorf("%s: %w", StepMetricsFile, err)
	}
	err = steps.each(func(c *cursor) {
		r.Steps = append(r.Steps, model.StepMetrics{
			Step:                    c.int("step"),
			NumVehicles:             c.int("num_vehicles"),
			AvgGapNorthbound:        c.float("avg_intervehicular_distance_northbound"),
			NorthboundFlow:          c.int("northbound_flow"),
			SouthboundFlow:          c.int("southbound_flow"),
			NorthboundSpeed:         c.float("northbound_speed"),
			SouthboundSpeed:         c.float("southbound_speed"),
			AverageSpeedAllVehicles: c.float("average_speed_all_vehicles"),
		})
	})
	if err != nil {
		return r, fmt.Errorf("%s: %w", StepMetricsFile, err)
	}

	if err := readOptional(dir, GlobalFile, globalHeader, func(c *cursor) {
		r.Global = append(r.Global, model.GlobalSample{
			Step:        c.int("time_step"),
			NumVehicles: c.int("num_vehicles"),
			Density:     c.float("density"),
			Flow:        c.float("flow"),
		})
	}); err != nil {
		return r, err
	}
	if err := readOptional(dir, VehicleFile, vehicleHeader, func(c *cursor) {
		r.Vehicles = append(r.Vehicles, model.VehicleSample{
			Step:            c.int("time_step"),
			VehicleID:       c.str("vehicle_id"),
			IsPlatoon:       c.bool("is_platoon"),
			Role:            model.PlatoonRole(c.str("platoon_role")),
			PlatoonID:       c.str("platoon_id"),
			X:               c.float("position_x"),
			Y:               c.float("position_y"),
			Speed:           c.float("speed"),
			Acceleration:    c.float("acceleration"),
			RoadID:          c.str("road_id"),
			LaneID:          c.str("lane_id"),
			Distance:        c.float("distance"),
			FuelConsumption: c.float("fuel_consumption"),
			CO2Emission:     c.float("co2_emission"),
			LeaderID:        c.str("leader_id"),
			LeaderDistance:  c.float("leader_distance"),
		})
	}); err != nil {
		return r, err
	}
	if err := readOptional(dir, PlatoonFile, platoonHeader, func(c *cursor) {
		r.Platoons = append(r.Platoons, model.PlatoonSample{
			Step:               c.int("time_step"),
			PlatoonID:          c.str("platoon_id"),
			Size:               c.int("platoon_size"),
			AvgHeadway:         c.float("avg_headway"),
			StdHeadway:         c.float("std_headway"),
			HeadwayConsistency: c.float("headway_consistency"),
			AvgFuel:            c.float("avg_fuel_consumption"),
		})
	}); err != nil {
		return r, err
	}

	if data, err := os.ReadFile(filepath.Join(dir, FuelFile)); err == nil {
		if err := json.Unmarshal(data, &r.Fuel); err != nil {
			return r, fmt.Errorf("%s: %w", FuelFile, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return r, err
	}
	if s, err := ReadSummary(dir); err == nil {
		r.RunID = s.RunID
	}
	return r, nil
}

func readOptional(dir, name string, header []string, fn func(c *cursor)) error {
	t, err := readTable(filepath.Join(dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := t.require(header...); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := t.each(fn); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
