package metrics

import (
	"fmt"

	"github.com/kilianp07/platoonsim/core/factory"
)

var sinkRegistry = factory.NewRegistry[Sink]()

// RegisterSink makes a sink type available to the metrics.sinks section.
// Infra packages register theirs from init.
func RegisterSink(name string, f factory.Factory[Sink]) error {
	return sinkRegistry.Register(name, f)
}

// NewSink builds the sinks that receive per-step corridor metrics, run
// statuses and run summaries. No entries yield a NopSink and several are
// fanned out through a MultiSink. When one entry fails, the sinks already
// built are closed.
func NewSink(cfgs []factory.ModuleConfig) (Sink, error) {
	if len(cfgs) == 0 {
		return NopSink{}, nil
	}
	sinks := make([]Sink, 0, len(cfgs))
	for i, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			NewMultiSink(sinks...).Close()
			return nil, fmt.Errorf("metrics sink %d (%s): %w", i, c.Type, err)
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return NewMultiSink(sinks...), nil
}
