package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/platoonsim/core/metrics"
	"github.com/kilianp07/platoonsim/core/model"
)

// PromSink exposes the latest corridor metrics of every running scenario.
type PromSink struct {
	vehicles   *prometheus.GaugeVec
	gap        *prometheus.GaugeVec
	flow       *prometheus.GaugeVec
	speed      *prometheus.GaugeVec
	platoons   *prometheus.GaugeVec
	extensions *prometheus.GaugeVec
	runs       *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	summary    *prometheus.GaugeVec
}

// NewPromSinkWithRegistry registers the run metrics on reg. A nil
// registerer defaults to the global one. Registering twice reuses the
// existing collectors.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		vehicles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "platoonsim_vehicles",
			Help: "Vehicles in the simulation at the last sampled step",
		}, []string{"scenario"}),
		gap: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "platoonsim_northbound_gap_meters",
			Help: "Average gap between consecutive northbound vehicles",
		}, []string{"scenario"}),
		flow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "platoonsim_corridor_vehicles",
			Help: "Vehicles on the corridor by direction",
		}, []string{"scenario", "direction"}),
		speed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "platoonsim_corridor_speed_mps",
			Help: "Weighted mean speed on the corridor by direction",
		}, []string{"scenario", "direction"}),
		platoons: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "platoonsim_platoons",
			Help: "Active platoons at the last sampled step",
		}, []string{"scenario"}),
		extensions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "platoonsim_green_extensions",
			Help: "Green extensions granted so far in the run",
		}, []string{"scenario"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "platoonsim_runs_total",
			Help: "Simulation runs by status",
		}, []string{"status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "platoonsim_run_duration_seconds",
			Help:    "Wall clock duration of finished runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"traffic"}),
		summary: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "platoonsim_summary",
			Help: "Summary metrics of finished runs",
		}, []string{"scenario", "metric"}),
	}
	var err error
	if s.vehicles, err = register(reg, s.vehicles); err != nil {
		return nil, err
	}
	if s.gap, err = register(reg, s.gap); err != nil {
		return nil, err
	}
	if s.flow, err = register(reg, s.flow); err != nil {
		return nil, err
	}
	if s.speed, err = register(reg, s.speed); err != nil {
		return nil, err
	}
	if s.platoons, err = register(reg, s.platoons); err != nil {
		return nil, err
	}
	if s.extensions, err = register(reg, s.extensions); err != nil {
		return nil, err
	}
	if s.runs, err = register(reg, s.runs); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, s.duration); err != nil {
		return nil, err
	}
	if s.summary, err = register(reg, s.summary); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordStep sets the gauges of the event's scenario.
func (s *PromSink) RecordStep(ev coremetrics.StepEvent) error {
	name := ev.Scenario.Name()
	m := ev.Metrics
	s.vehicles.WithLabelValues(name).Set(float64(m.NumVehicles))
	s.gap.WithLabelValues(name).Set(m.AvgGapNorthbound)
	s.flow.WithLabelValues(name, "northbound").Set(float64(m.NorthboundFlow))
	s.flow.WithLabelValues(name, "southbound").Set(float64(m.SouthboundFlow))
	s.speed.WithLabelValues(name, "northbound").Set(m.NorthboundSpeed)
	s.speed.WithLabelValues(name, "southbound").Set(m.SouthboundSpeed)
	s.speed.WithLabelValues(name, "all").Set(m.AverageSpeedAllVehicles)
	s.platoons.WithLabelValues(name).Set(float64(ev.Platoons))
	s.extensions.WithLabelValues(name).Set(float64(ev.Extensions))
	return nil
}

// RecordRunStatus counts lifecycle changes and observes durations of
// completed runs.
func (s *PromSink) RecordRunStatus(ev coremetrics.RunStatusEvent) error {
	s.runs.WithLabelValues(ev.Status).Inc()
	if ev.Status != coremetrics.StatusStarted {
		s.duration.WithLabelValues(ev.Scenario.Traffic.String()).Observe(ev.Duration.Seconds())
	}
	return nil
}

// RecordSummary publishes every computed summary value.
func (s *PromSink) RecordSummary(sum model.Summary) error {
	name := sum.Scenario.Name()
	for _, k := range model.SummaryKeys {
		if v, ok := sum.Value(k); ok {
			s.summary.WithLabelValues(name, k).Set(v)
		}
	}
	return nil
}
