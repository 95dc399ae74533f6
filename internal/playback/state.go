// Package playback drives one camera stream through its lifecycle. A Player
// owns at most one session at a time; every input (user intent, negotiation
// results, adapter events, heartbeat ticks, timers) is applied by a single
// event loop in arrival order.
package playback

// State is the lifecycle state of the current stream session.
type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateConnecting
	StatePlaying
	StateStalled
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateConnecting:
		return "connecting"
	case StatePlaying:
		return "playing"
	case StateStalled:
		return "stalled"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// HasSession reports whether a relay session id is held in this state.
func (s State) HasSession() bool {
	return s == StateConnecting || s == StatePlaying || s == StateStalled
}

// IsLive reports whether media is expected to flow.
func (s State) IsLive() bool {
	return s == StatePlaying || s == StateStalled
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
