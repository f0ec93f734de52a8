// internal/playback/state.go
package playback

import "fmt"

// State represents the session state machine.
//
//	Connecting ──join ok──▶ Idle ──track starts──▶ Playing ◀──resume── Paused
//	                         ▲                       │  └────pause────▶  │
//	                         └───queue exhausted─────┘                   │
//	any state ──stop / connection lost──▶ Stopped (terminal) ◀───────────┘
type State int

const (
	StateIdle State = iota
	StateConnecting
	StatePlaying
	StatePaused
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// IsActive returns true if a track is loaded (playing or paused).
func (s State) IsActive() bool {
	return s == StatePlaying || s == StatePaused
}

// MarshalText encodes the state by name for the remote protocol.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for _, candidate := range []State{StateIdle, StateConnecting, StatePlaying, StatePaused, StateStopped} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}
