// Package events defines the run lifecycle events emitted on the event bus.
//
// Available event types:
//   - RunStarted: a simulation run was launched
//   - RunProgress: periodic step progress of a run
//   - RunFinished: a run ended, successfully or not
package events
