package process

import "time"

// State represents the current state of a process.
type State string

// Process states.
const (
	StateIdle     State = "idle"     // never started or exited cleanly
	StateRunning  State = "running"  // started and not yet exited
	StateStopping State = "stopping" // Stop in progress
	StateError    State = "error"    // failed to start or exited non-zero on its own
)

// Info is a snapshot of a process.
type Info struct {
	ID        string
	State     State
	PID       int
	StartedAt time.Time
	LastExit  *Exit
}

// Exit describes how a process ended.
type Exit struct {
	Code      int
	Requested bool // Stop was called before the process ended
	Err       error
}
