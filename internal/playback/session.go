package playback

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"camstream/internal/relay"
	"camstream/internal/transport"
)

// session is everything owned by one negotiated stream. It is touched only by
// the event loop.
type session struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc

	id      string
	kind    transport.Kind
	adapter transport.Adapter
	lease   *transport.Lease

	establishTimer *time.Timer
	monitor        *monitor

	lastHeartbeatAt   time.Time
	heartbeatFailures int
	frames            uint64
}

func (p *Player) startSession() {
	p.gen++
	p.lastErr = nil
	ctx, cancel := context.WithCancel(p.ctx)
	s := &session{gen: p.gen, ctx: ctx, cancel: cancel, kind: p.cfg.Transport}
	p.sess = s
	p.apply(EvPlay, nil)

	cameraID := p.cfg.Source.CameraID
	p.workers.Add(1)
	go func() {
		defer p.workers.Done()
		h, err := p.neg.Negotiate(ctx, cameraID)
		if err != nil {
			p.post(ctx, message{ev: EvNegotiationFailed, gen: s.gen, err: err})
			return
		}
		if !p.post(ctx, message{ev: EvNegotiated, gen: s.gen, handle: h}) {
			p.releaseAsync(h.SessionID)
		}
	}()
}

func (p *Player) onNegotiated(h relay.SessionHandle) {
	s := p.sess
	s.id = h.SessionID
	p.apply(EvNegotiated, nil)

	adapter, err := p.newAdapter()
	if err != nil {
		p.fail(EvFatal, fmt.Errorf("create adapter: %w", err))
		return
	}
	s.adapter = adapter
	s.kind = adapter.Kind()

	if s.kind == transport.KindEmbeddedDocument && p.cfg.Source.PlayableAddress != "" {
		u, err := url.Parse(p.cfg.Source.PlayableAddress)
		if err != nil {
			p.fail(EvFatal, fmt.Errorf("parse playable address: %w", err))
			return
		}
		h.PlayableURL = u
	}

	lease, err := p.surface.Acquire()
	if err != nil {
		p.fail(EvFatal, err)
		return
	}
	s.lease = lease

	s.establishTimer = time.AfterFunc(p.cfg.EstablishTimeout, func() {
		p.post(s.ctx, message{ev: EvEstablishTimeout, gen: s.gen})
	})
	adapter.Establish(s.ctx, h, lease, p.emitter(s))
	p.publish()
}

// emitter funnels adapter events into the loop, tagged with the session.
func (p *Player) emitter(s *session) transport.Emitter {
	return func(ev transport.Event) {
		m := message{gen: s.gen, err: ev.Err, at: ev.At}
		switch ev.Type {
		case transport.EventReady:
			m.ev = EvReady
		case transport.EventStalled:
			m.ev = EvStalled
		case transport.EventFatal:
			m.ev = EvFatal
		case transport.EventProgress:
			m.ev = evProgress
		default:
			return
		}
		p.post(s.ctx, m)
	}
}

func (p *Player) onReady() {
	s := p.sess
	if p.state == StateConnecting && s.establishTimer != nil {
		s.establishTimer.Stop()
	}
	if !p.apply(EvReady, nil) {
		return
	}
	if s.monitor == nil {
		s.monitor = startMonitor(p.cfg.HeartbeatInterval, func() {
			p.post(s.ctx, message{ev: evHeartbeatDue, gen: s.gen})
		})
	}
}

// fail moves to Failed and frees the session. The cause stays visible in
// Status until the next session starts.
func (p *Player) fail(ev EventKind, err error) {
	from := p.state
	if _, ok := Next(from, ev); !ok {
		return
	}
	p.log.Warn("playback failed",
		slog.String("from", from.String()),
		slog.String("session_id", p.sessionID()),
		slog.String("error", errString(err)))
	p.destroySession()
	p.lastErr = err
	p.apply(ev, err)
}

// destroySession tears the adapter down before the relay is told to stop.
func (p *Player) destroySession() {
	s := p.sess
	if s == nil {
		return
	}
	p.sess = nil
	p.held = nil

	s.cancel()
	if s.establishTimer != nil {
		s.establishTimer.Stop()
	}
	s.monitor.stop()
	if s.adapter != nil {
		s.adapter.Teardown()
	}
	if s.lease != nil {
		s.lease.Release()
	}
	if s.id != "" {
		p.releaseAsync(s.id)
	}
}

func (p *Player) releaseAsync(id string) {
	if id == "" {
		return
	}
	p.workers.Add(1)
	go func() {
		defer p.workers.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ReleaseTimeout)
		defer cancel()
		p.neg.Release(ctx, id)
		p.metrics.IncReleases()
	}()
}
