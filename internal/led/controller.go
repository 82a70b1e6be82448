// Package led drives a board status LED from the session state.
package led

// Patterns understood by every Controller.
const (
	PatternSolid     = "solid"
	PatternBlink     = "blink"
	PatternHeartbeat = "heartbeat"
)

// Controller abstracts LED hardware control across boards.
type Controller interface {
	// Set switches ledType on or off with an optional pattern. An empty
	// pattern leaves the trigger alone.
	Set(ledType string, enabled bool, pattern string) error

	// Available returns the LED types this board exposes.
	Available() []string

	// Patterns returns the patterns this controller can show.
	Patterns() []string
}
