package events

import (
	"time"

	"github.com/kilianp07/platoonsim/core/model"
)

// RunStarted is published once the simulator is connected.
type RunStarted struct {
	RunID    string
	Scenario model.Scenario
	Config   string
	MaxSteps int
	Time     time.Time
}

// RunProgress reports the step reached by a run.
type RunProgress struct {
	RunID    string
	Scenario model.Scenario
	Step     int
	MaxSteps int
	Vehicles int
	Platoons int
	Time     time.Time
}

// RunFinished is published when a run ends. Err is nil on success.
type RunFinished struct {
	RunID    string
	Scenario model.Scenario
	Steps    int
	Duration time.Duration
	Summary  *model.Summary
	Err      error
}
