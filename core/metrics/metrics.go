package metrics

import (
	"time"

	"github.com/kilianp07/platoonsim/core/model"
)

// StepEvent is one sampled simulation step of a run.
type StepEvent struct {
	RunID      string
	Scenario   model.Scenario
	Metrics    model.StepMetrics
	Platoons   int
	Extensions int
	Time       time.Time
}

// Sink records step metrics and run summaries.
type Sink interface {
	RecordStep(ev StepEvent) error
	RecordSummary(s model.Summary) error
}

// Run statuses.
const (
	StatusStarted  = "started"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// RunStatusEvent captures a lifecycle change of a run.
type RunStatusEvent struct {
	RunID    string
	Scenario model.Scenario
	Status   string
	Duration time.Duration
	Time     time.Time
}

// RunStatusRecorder is implemented by sinks that track run lifecycles.
type RunStatusRecorder interface {
	RecordRunStatus(ev RunStatusEvent) error
}

// NopSink implements Sink with no-op methods.
type NopSink struct{}

func (NopSink) RecordStep(StepEvent) error           { return nil }
func (NopSink) RecordSummary(model.Summary) error    { return nil }
func (NopSink) RecordRunStatus(RunStatusEvent) error { return nil }

// MultiSink fans records out to several sinks, returning the first error.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordStep(ev StepEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordStep(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordSummary(sum model.Summary) error {
	for _, s := range m.Sinks {
		if err := s.RecordSummary(sum); err != nil {
			return err
		}
	}
	return nil
}

// RecordRunStatus forwards to the sinks that track run status.
func (m *MultiSink) RecordRunStatus(ev RunStatusEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(RunStatusRecorder); ok {
			if err := rec.RecordRunStatus(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// Closer is implemented by sinks holding connections, such as the influx
// writer.
type Closer interface {
	Close()
}

// Close closes the sinks that implement Closer.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(Closer); ok {
			c.Close()
		}
	}
}
