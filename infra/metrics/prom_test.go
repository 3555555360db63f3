package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/platoonsim/core/metrics"
	"github.com/kilianp07/platoonsim/core/model"
)

func TestPromSinkRecordStep(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordStep(coremetrics.StepEvent{
		Scenario: testScenario,
		Metrics:  model.StepMetrics{NumVehicles: 12, NorthboundFlow: 5, SouthboundFlow: 3},
		Platoons: 2,
	}))

	expected := `
# HELP platoonsim_corridor_vehicles Vehicles on the corridor by direction
# TYPE platoonsim_corridor_vehicles gauge
platoonsim_corridor_vehicles{direction="northbound",scenario="ps4_np10_traffic_light_traffic"} 5
platoonsim_corridor_vehicles{direction="southbound",scenario="ps4_np10_traffic_light_traffic"} 3
`
	assert.NoError(t, testutil.CollectAndCompare(sink.flow, strings.NewReader(expected)))
	assert.Equal(t, 12.0, testutil.ToFloat64(sink.vehicles.WithLabelValues(testScenario.Name())))
	assert.Equal(t, 2.0, testutil.ToFloat64(sink.platoons.WithLabelValues(testScenario.Name())))
}

func TestPromSinkRunStatusAndSummary(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordRunStatus(coremetrics.RunStatusEvent{Scenario: testScenario, Status: coremetrics.StatusStarted}))
	require.NoError(t, sink.RecordRunStatus(coremetrics.RunStatusEvent{Scenario: testScenario, Status: coremetrics.StatusFinished, Duration: 3 * time.Second}))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.runs.WithLabelValues(coremetrics.StatusStarted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.runs.WithLabelValues(coremetrics.StatusFinished)))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.duration))

	require.NoError(t, sink.RecordSummary(model.Summary{
		Scenario: testScenario,
		Values:   map[string]float64{model.KeyAverageFlow: 420},
	}))
	assert.Equal(t, 420.0, testutil.ToFloat64(sink.summary.WithLabelValues(testScenario.Name(), model.KeyAverageFlow)))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.summary))
}

func TestPromSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	b, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	assert.Same(t, a.runs, b.runs)
}

func TestPromHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	require.NoError(t, sink.RecordRunStatus(coremetrics.RunStatusEvent{Status: coremetrics.StatusStarted}))

	rec := httptest.NewRecorder()
	PromHandler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `platoonsim_runs_total{status="started"} 1`)
}
