package runner

import (
	"context"
	"time"

	"github.com/kilianp07/platoonsim/core/model"
)

// Journal statuses.
const (
	StatusStarted  = "started"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// Record is one journal entry describing a run lifecycle change.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Scenario  model.Scenario `json:"scenario"`
	Config    string         `json:"config"`
	Status    string         `json:"status"`
	Steps     int            `json:"steps,omitempty"`
	Duration  time.Duration  `json:"duration,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Query filters journal records. Zero fields match everything.
type Query struct {
	Start  time.Time
	End    time.Time
	Status string
	RunID  string
}

// Match reports whether r satisfies q.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Status != "" && r.Status != q.Status {
		return false
	}
	if q.RunID != "" && r.RunID != q.RunID {
		return false
	}
	return true
}

// Journal persists run records.
type Journal interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopJournal discards records.
type NopJournal struct{}

func (NopJournal) Append(context.Context, Record) error           { return nil }
func (NopJournal) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopJournal) Close() error                                   { return nil }
