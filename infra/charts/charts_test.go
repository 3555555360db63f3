package charts

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/platoonsim/core/analysis"
	"github.com/kilianp07/platoonsim/core/model"
)

func TestRunCharts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "charts.html")
	r := analysis.Run{
		Scenario: model.Scenario{PlatoonSize: 2, NumPlatoons: 10, Traffic: model.TrafficLight},
		Global:   []model.GlobalSample{{Step: 0, Density: 1, Flow: 3600}, {Step: 1, Density: 2, Flow: 3600}},
		Steps:    []model.StepMetrics{{Step: 1, NorthboundSpeed: 10}},
		Platoons: []model.PlatoonSample{
			{Step: 0, AvgHeadway: 0.5, AvgFuel: 10},
			{Step: 0, AvgHeadway: math.NaN(), AvgFuel: 20},
		},
	}
	require.NoError(t, Writer{}.RunCharts(path, r))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, "Traffic density")
	assert.Contains(t, html, "Platoon headway")
	assert.Contains(t, html, "ps2_np10_traffic_light_traffic")
}

func TestRunChartsEmpty(t *testing.T) {
	err := Writer{}.RunCharts(filepath.Join(t.TempDir(), "charts.html"), analysis.Run{})
	assert.Error(t, err)
}

func TestPlatoonSeriesAveragesPerStep(t *testing.T) {
	x, h, f := platoonSeries([]model.PlatoonSample{
		{Step: 3, AvgHeadway: 1, AvgFuel: 4},
		{Step: 1, AvgHeadway: 0.5, AvgFuel: 2},
		{Step: 3, AvgHeadway: math.NaN(), AvgFuel: 6},
	})
	assert.Equal(t, []string{"1", "3"}, x)
	assert.Equal(t, []float64{0.5, 1}, h)
	assert.Equal(t, []float64{2, 5}, f)
}

func TestSweepCharts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep_charts.html")
	summaries := []model.Summary{
		{Scenario: model.Scenario{PlatoonSize: 2, NumPlatoons: 10, Traffic: model.TrafficLight}, Values: map[string]float64{model.KeyAverageFlow: 100}},
		{Scenario: model.Scenario{PlatoonSize: 4, NumPlatoons: 10, Traffic: model.TrafficLight}, Values: map[string]float64{model.KeyAverageFlow: 120}},
		{Scenario: model.Scenario{PlatoonSize: 4, NumPlatoons: 25, Traffic: model.TrafficHeavy}, Values: map[string]float64{model.KeyAverageFlow: 90}},
	}
	require.NoError(t, Writer{}.SweepCharts(path, summaries))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Average Flow")
	assert.Contains(t, string(data), "heavy_traffic, 25 platoons")

	assert.Error(t, Writer{}.SweepCharts(path, nil))
}
