// Package mode holds the shared Active/Inactive gate that couples the audio
// and vision streams.
package mode

import (
	"sync/atomic"

	"github.com/teslashibe/go-lumos/pkg/detection"
)

// State is the gate value.
type State bool

const (
	Inactive State = false
	Active   State = true
)

// String returns "active" or "inactive".
func (s State) String() string {
	if s {
		return "active"
	}
	return "inactive"
}

// StatusText returns the display text for the state.
func (s State) StatusText() string {
	if s {
		return "Lumos ON"
	}
	return "Lumos OFF"
}

// Transition describes the effect of one command on the gate.
type Transition struct {
	Command detection.AudioCommand
	From    State
	To      State
}

// Changed reports whether the state flipped.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Gate is a race-free boolean flag. The audio result path writes it and the
// vision result path reads it. The zero value is Inactive.
//
// Errors never reset the gate: a lost audio signal leaves the last known
// state in place.
type Gate struct {
	active atomic.Bool
}

// New returns an inactive gate.
func New() *Gate {
	return &Gate{}
}

// Load returns the current state.
func (g *Gate) Load() State {
	return State(g.active.Load())
}

// IsActive reports whether the gate is active.
func (g *Gate) IsActive() bool {
	return g.active.Load()
}

// Apply updates the gate from an audio command. CommandNone leaves the state
// unchanged.
func (g *Gate) Apply(cmd detection.AudioCommand) Transition {
	switch cmd {
	case detection.CommandOn:
		prev := g.active.Swap(true)
		return Transition{Command: cmd, From: State(prev), To: Active}
	case detection.CommandOff:
		prev := g.active.Swap(false)
		return Transition{Command: cmd, From: State(prev), To: Inactive}
	default:
		cur := g.Load()
		return Transition{Command: cmd, From: cur, To: cur}
	}
}
