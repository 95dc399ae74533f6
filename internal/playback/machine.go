package playback

// EventKind is an input to the player's event loop. Only some kinds drive
// transitions; the rest (progress, heartbeat bookkeeping) update counters.
type EventKind int

const (
	EvPlay EventKind = iota
	EvReset
	EvNegotiated
	EvNegotiationFailed
	EvReady
	EvStalled
	EvHeartbeatRejected
	EvFatal
	EvEstablishTimeout
	EvStop

	evProgress
	evHeartbeatDue
	evHeartbeatDone
	evReload
	evClose
	evStopWithdrawn
)

func (e EventKind) String() string {
	switch e {
	case EvPlay:
		return "play"
	case EvReset:
		return "reset"
	case EvNegotiated:
		return "negotiated"
	case EvNegotiationFailed:
		return "negotiation_failed"
	case EvReady:
		return "ready"
	case EvStalled:
		return "stalled"
	case EvHeartbeatRejected:
		return "heartbeat_rejected"
	case EvFatal:
		return "fatal"
	case EvEstablishTimeout:
		return "establish_timeout"
	case EvStop:
		return "stop"
	case evProgress:
		return "progress"
	case evHeartbeatDue:
		return "heartbeat_due"
	case evHeartbeatDone:
		return "heartbeat_done"
	case evReload:
		return "reload"
	case evClose:
		return "close"
	case evStopWithdrawn:
		return "stop_withdrawn"
	default:
		return "unknown"
	}
}

// Transition is a single allowed edge in the playback state machine.
type Transition struct {
	From  State
	To    State
	Event EventKind
}

var transitionsTable = []Transition{
	// Start path
	{From: StateClosed, To: StateIdle, Event: EvReset},
	{From: StateIdle, To: StateNegotiating, Event: EvPlay},
	{From: StateNegotiating, To: StateConnecting, Event: EvNegotiated},
	{From: StateConnecting, To: StatePlaying, Event: EvReady},

	// Liveness
	{From: StatePlaying, To: StateStalled, Event: EvStalled},
	{From: StatePlaying, To: StateStalled, Event: EvHeartbeatRejected},
	{From: StateStalled, To: StatePlaying, Event: EvReady},

	// Failures never retry on their own
	{From: StateNegotiating, To: StateFailed, Event: EvNegotiationFailed},
	{From: StateConnecting, To: StateFailed, Event: EvFatal},
	{From: StateConnecting, To: StateFailed, Event: EvEstablishTimeout},
	{From: StatePlaying, To: StateFailed, Event: EvFatal},
	{From: StateStalled, To: StateFailed, Event: EvFatal},

	// Stop from anywhere but Closed
	{From: StateIdle, To: StateClosed, Event: EvStop},
	{From: StateNegotiating, To: StateClosed, Event: EvStop},
	{From: StateConnecting, To: StateClosed, Event: EvStop},
	{From: StatePlaying, To: StateClosed, Event: EvStop},
	{From: StateStalled, To: StateClosed, Event: EvStop},
	{From: StateFailed, To: StateClosed, Event: EvStop},
}

// Next returns the state reached from `from` on ev, and false when the
// event does not apply in that state.
func Next(from State, ev EventKind) (State, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr.To, true
		}
	}
	return from, false
}

// heartbeatAllowed gates every heartbeat dispatch.
func heartbeatAllowed(s State, sessionID string) bool {
	return sessionID != "" && s.IsLive()
}
