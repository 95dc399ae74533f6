package playback

import (
	"time"

	"camstream/internal/relay"
	"camstream/internal/transport"
)

// Status is a snapshot of the player. UI flags are derived from State.
type Status struct {
	State             State
	CameraID          int64
	SessionID         string
	Transport         transport.Kind
	Generation        uint64
	Err               error
	LastHeartbeatAt   time.Time
	HeartbeatFailures int
	Frames            uint64
}

// ShowRetry reports whether a retry control should be offered.
func (s Status) ShowRetry() bool { return s.State == StateFailed }

// ShowStallIndicator reports whether the non-blocking stall hint is shown.
func (s Status) ShowStallIndicator() bool { return s.State == StateStalled }

// Loading reports whether a spinner is shown.
func (s Status) Loading() bool {
	return s.State == StateNegotiating || s.State == StateConnecting
}

// NeedsAuth reports a failure only fixed by signing in again.
func (s Status) NeedsAuth() bool {
	return s.State == StateFailed && relay.IsAuth(s.Err)
}

// Status returns the latest snapshot.
func (p *Player) Status() Status {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	return p.status
}

func (p *Player) sessionID() string {
	if p.sess == nil {
		return ""
	}
	return p.sess.id
}

// publish stores the loop's view for Status callers.
func (p *Player) publish() Status {
	st := Status{
		State:      p.state,
		CameraID:   p.cfg.Source.CameraID,
		Transport:  p.cfg.Transport,
		Generation: p.gen,
		Err:        p.lastErr,
	}
	if s := p.sess; s != nil {
		st.SessionID = s.id
		st.Transport = s.kind
		st.LastHeartbeatAt = s.lastHeartbeatAt
		st.HeartbeatFailures = s.heartbeatFailures
		st.Frames = s.frames
	}
	p.metrics.SetActiveSessions(boolToInt(st.SessionID != ""))

	p.statusMu.Lock()
	p.status = st
	p.statusMu.Unlock()
	return st
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
