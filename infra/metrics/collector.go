package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/platoonsim/core/events"
	coremetrics "github.com/kilianp07/platoonsim/core/metrics"
	"github.com/kilianp07/platoonsim/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and forwards run
// lifecycle events and summaries to sink. It stops when ctx is canceled or
// the bus is closed. The returned channel is closed once it has stopped.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.Sink) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	rec, _ := sink.(coremetrics.RunStatusRecorder)
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				handleEvent(ev, sink, rec)
			}
		}
	}()
	return done
}

func handleEvent(ev eventbus.Event, sink coremetrics.Sink, rec coremetrics.RunStatusRecorder) {
	switch e := ev.(type) {
	case events.RunStarted:
		if rec != nil {
			_ = rec.RecordRunStatus(coremetrics.RunStatusEvent{
				RunID:    e.RunID,
				Scenario: e.Scenario,
				Status:   coremetrics.StatusStarted,
				Time:     e.Time,
			})
		}
	case events.RunFinished:
		if rec != nil {
			status := coremetrics.StatusFinished
			if e.Err != nil {
				status = coremetrics.StatusFailed
			}
			_ = rec.RecordRunStatus(coremetrics.RunStatusEvent{
				RunID:    e.RunID,
				Scenario: e.Scenario,
				Status:   status,
				Duration: e.Duration,
				Time:     time.Now(),
			})
		}
		if e.Summary != nil {
			_ = sink.RecordSummary(*e.Summary)
		}
	}
}
