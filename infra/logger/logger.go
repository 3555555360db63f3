package logger

import corelogger "github.com/kilianp07/platoonsim/core/logger"

// Logger is the logger handed to the runner, the simulator client and the
// infra adapters.
type Logger = corelogger.Logger

// NopLogger discards everything. Tests and library callers without a
// logger use it.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any)         {}
func (NopLogger) Debugw(string, map[string]any) {}
func (NopLogger) Infof(string, ...any)          {}
func (NopLogger) Warnf(string, ...any)          {}
func (NopLogger) Errorf(string, ...any)         {}

// New returns a zerolog Logger tagged with component ("runner", "traci",
// "mqtt", ...). Output follows Configure, or APP_ENV when Configure was
// never called.
func New(component string) Logger {
	return NewZerologLogger(component)
}
