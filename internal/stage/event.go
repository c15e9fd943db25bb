// SPDX-License-Identifier: MIT

// Package stage defines the event contract between the stage runners and the
// orchestrator. A runner publishes a stream of progress events followed by
// exactly one terminal event, then closes the channel; the orchestrator
// drives the job state machine purely from these events.
package stage

// Event is one notification from a running stage process.
type Event struct {
	// Progress is a percentage in [0, 100]; meaningful when Terminal is false.
	Progress float64

	// Terminal marks the last event on the channel.
	Terminal bool

	// Err is nil on success and a classified failure otherwise. Only set on
	// terminal events.
	Err error

	// Output is the produced file path. Only set on successful terminal
	// events of stages that produce a file.
	Output string
}

// ProgressEvent builds a non-terminal progress notification.
func ProgressEvent(percent float64) Event {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return Event{Progress: percent}
}

// DoneEvent builds a successful terminal notification.
func DoneEvent(output string) Event {
	return Event{Terminal: true, Output: output}
}

// FailedEvent builds a failed terminal notification.
func FailedEvent(err error) Event {
	return Event{Terminal: true, Err: err}
}
