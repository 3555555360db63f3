package traci

import "fmt"

// CommandError is returned when the simulator answers a command with an
// error or not-implemented status.
type CommandError struct {
	Command byte
	Result  byte
	Message string
}

func (e *CommandError) Error() string {
	kind := "failed"
	if e.Result == rtypeNI {
		kind = "not implemented"
	}
	return fmt.Sprintf("traci command 0x%02x %s: %s", e.Command, kind, e.Message)
}
