// Package charts renders run and sweep metrics as HTML line charts.
package charts

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kilianp07/platoonsim/core/analysis"
	"github.com/kilianp07/platoonsim/core/model"
)

// Writer implements analysis.ChartWriter with go-echarts pages.
type Writer struct{}

var _ analysis.ChartWriter = Writer{}

type series struct {
	name   string
	values []float64
}

// point converts v to chart data. Non-finite values leave a gap.
func point(v float64) opts.LineData {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return opts.LineData{Value: nil}
	}
	return opts.LineData{Value: v}
}

func newLine(title, xName, yName string, x []string, ss ...series) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: xName}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName}),
	)
	line.SetXAxis(x)
	for _, s := range ss {
		data := make([]opts.LineData, len(s.values))
		for i, v := range s.values {
			data[i] = point(v)
		}
		line.AddSeries(s.name, data)
	}
	return line
}

func render(path string, page *components.Page) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := page.Render(io.Writer(f)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// RunCharts writes the density, flow, speed, headway and fuel charts of a
// single run to path.
func (Writer) RunCharts(path string, r analysis.Run) error {
	page := components.NewPage()
	page.PageTitle = r.Scenario.Name()

	if len(r.Global) > 0 {
		x := make([]string, len(r.Global))
		density := make([]float64, len(r.Global))
		flow := make([]float64, len(r.Global))
		for i, g := range r.Global {
			x[i] = strconv.Itoa(g.Step)
			density[i], flow[i] = g.Density, g.Flow
		}
		page.AddCharts(
			newLine("Traffic density", "time step", "vehicles/km", x, series{"density", density}),
			newLine("Traffic flow", "time step", "vehicles/h", x, series{"flow", flow}),
		)
	}
	if len(r.Steps) > 0 {
		x := make([]string, len(r.Steps))
		nb := make([]float64, len(r.Steps))
		sb := make([]float64, len(r.Steps))
		all := make([]float64, len(r.Steps))
		for i, m := range r.Steps {
			x[i] = strconv.Itoa(m.Step)
			nb[i], sb[i], all[i] = m.NorthboundSpeed, m.SouthboundSpeed, m.AverageSpeedAllVehicles
		}
		page.AddCharts(newLine("Corridor speed", "step", "m/s", x,
			series{"northbound", nb}, series{"southbound", sb}, series{"all vehicles", all}))
	}
	if len(r.Platoons) > 0 {
		x, headway, fuel := platoonSeries(r.Platoons)
		page.AddCharts(
			newLine("Platoon headway", "time step", "s", x, series{"average headway", headway}),
			newLine("Platoon fuel consumption", "time step", "mg/s", x, series{"average fuel", fuel}),
		)
	}
	if len(page.Charts) == 0 {
		return fmt.Errorf("run %s has no metrics to chart", r.Scenario.Name())
	}
	return render(path, page)
}

// platoonSeries averages the platoon samples of each step.
func platoonSeries(ps []model.PlatoonSample) ([]string, []float64, []float64) {
	headway := map[int][]float64{}
	fuel := map[int][]float64{}
	for _, p := range ps {
		headway[p.Step] = append(headway[p.Step], p.AvgHeadway)
		fuel[p.Step] = append(fuel[p.Step], p.AvgFuel)
	}
	steps := make([]int, 0, len(headway))
	for s := range headway {
		steps = append(steps, s)
	}
	sort.Ints(steps)
	x := make([]string, len(steps))
	h := make([]float64, len(steps))
	f := make([]float64, len(steps))
	for i, s := range steps {
		x[i] = strconv.Itoa(s)
		h[i] = analysis.Mean(headway[s])
		f[i] = analysis.Mean(fuel[s])
	}
	return x, h, f
}

// SweepCharts writes one chart per summary metric, plotting the metric
// against platoon size with a series per traffic type and platoon count.
func (Writer) SweepCharts(path string, summaries []model.Summary) error {
	sizes := map[int]bool{}
	for _, s := range summaries {
		sizes[s.Scenario.PlatoonSize] = true
	}
	order := make([]int, 0, len(sizes))
	for s := range sizes {
		order = append(order, s)
	}
	sort.Ints(order)
	x := make([]string, len(order))
	index := make(map[int]int, len(order))
	for i, s := range order {
		x[i] = strconv.Itoa(s)
		index[s] = i
	}

	page := components.NewPage()
	page.PageTitle = "Platoon sweep"
	for _, key := range model.SummaryKeys {
		var ss []series
		for _, sr := range analysis.SweepSeries(summaries, key) {
			values := make([]float64, len(order))
			for i := range values {
				values[i] = math.NaN()
			}
			for _, p := range sr.Points {
				values[index[p.PlatoonSize]] = p.Value
			}
			ss = append(ss, series{name: fmt.Sprintf("%s, %d platoons", sr.Traffic, sr.NumPlatoons), values: values})
		}
		if len(ss) == 0 {
			continue
		}
		page.AddCharts(newLine(analysis.TitleKey(key), "platoon size", "", x, ss...))
	}
	if len(page.Charts) == 0 {
		return fmt.Errorf("no summary metrics to chart")
	}
	return render(path, page)
}
