package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/platoonsim/core/metrics"
	"github.com/kilianp07/platoonsim/core/model"
	"github.com/kilianp07/platoonsim/infra/logger"
)

// InfluxSink writes run metrics to InfluxDB using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings InfluxDB and returns a NopSink when the
// health check fails, so an unreachable database never aborts a sweep.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func scenarioPoint(measurement string, sc model.Scenario) *write.Point {
	return write.NewPointWithMeasurement(measurement).
		AddTag("scenario", sc.Name()).
		AddTag("platoon_size", strconv.Itoa(sc.PlatoonSize)).
		AddTag("num_platoons", strconv.Itoa(sc.NumPlatoons)).
		AddTag("traffic", sc.Traffic.String())
}

// RecordStep writes one corridor sample.
func (s *InfluxSink) RecordStep(ev coremetrics.StepEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m := ev.Metrics
	p := scenarioPoint("corridor_step", ev.Scenario).
		AddTag("run_id", ev.RunID).
		AddField("step", m.Step).
		AddField("num_vehicles", m.NumVehicles).
		AddField("northbound_flow", m.NorthboundFlow).
		AddField("southbound_flow", m.SouthboundFlow).
		AddField("northbound_speed", round3(m.NorthboundSpeed)).
		AddField("southbound_speed", round3(m.SouthboundSpeed)).
		AddField("average_speed", round3(m.AverageSpeedAllVehicles)).
		AddField("platoons", ev.Platoons).
		AddField("extensions", ev.Extensions).
		SetTime(ev.Time)
	if !math.IsNaN(m.AvgGapNorthbound) {
		p = p.AddField("avg_gap_northbound", round3(m.AvgGapNorthbound))
	}
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordRunStatus writes a lifecycle change.
func (s *InfluxSink) RecordRunStatus(ev coremetrics.RunStatusEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := scenarioPoint("run_status", ev.Scenario).
		AddTag("run_id", ev.RunID).
		AddTag("status", ev.Status).
		AddField("duration_s", round3(ev.Duration.Seconds())).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSummary writes the computed summary values of a run. A summary
// without values is skipped.
func (s *InfluxSink) RecordSummary(sum model.Summary) error {
	p := scenarioPoint("run_summary", sum.Scenario).
		AddTag("run_id", sum.RunID).
		AddField("steps", sum.Steps)
	n := 0
	for _, k := range model.SummaryKeys {
		if v, ok := sum.Value(k); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			p = p.AddField(k, round3(v))
			n++
		}
	}
	if n == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p.SetTime(time.Now()))
}

// Close releases the HTTP client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
