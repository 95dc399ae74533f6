package playback

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"camstream/internal/relay"
)

// monitor paces heartbeats for one session. It only signals that a beat is
// due; the event loop decides whether the beat is sent.
type monitor struct {
	stopCh chan struct{}
	done   chan struct{}
}

func startMonitor(interval time.Duration, due func()) *monitor {
	m := &monitor{stopCh: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				due()
			}
		}
	}()
	return m
}

// stop halts the ticker and waits for the goroutine. due must not block
// forever once stop is called.
func (m *monitor) stop() {
	if m == nil {
		return
	}
	select {
	case <-m.stopCh:
	default:
		close(m.stopCh)
	}
	<-m.done
}

// beat sends one heartbeat off the loop; the result comes back as a message.
func (p *Player) beat(s *session) {
	id := s.id
	timeout := p.cfg.HeartbeatInterval
	p.workers.Add(1)
	go func() {
		defer p.workers.Done()
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()
		err := p.neg.Heartbeat(ctx, id)
		p.post(s.ctx, message{ev: evHeartbeatDone, gen: s.gen, err: err, at: time.Now()})
	}()
}

func (p *Player) onHeartbeat(err error, at time.Time) {
	s := p.sess
	switch {
	case err == nil:
		s.lastHeartbeatAt = at
		p.metrics.ObserveHeartbeat("ok")
	case errors.Is(err, relay.ErrSessionExpired):
		s.heartbeatFailures++
		p.metrics.ObserveHeartbeat("rejected")
		p.log.Warn("heartbeat not acknowledged", slog.String("session_id", s.id), slog.String("error", err.Error()))
		p.apply(EvHeartbeatRejected, err)
	default:
		s.heartbeatFailures++
		p.metrics.ObserveHeartbeat("error")
		p.log.Warn("heartbeat failed", slog.String("session_id", s.id), slog.String("error", err.Error()))
	}
	p.publish()
}
