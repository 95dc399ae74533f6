package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"camstream/internal/platform/metrics"
	"camstream/internal/relay"
	"camstream/internal/transport"

	"golang.org/x/time/rate"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultEstablishTimeout  = 20 * time.Second
	defaultReleaseTimeout    = 5 * time.Second

	eventBuffer = 64
)

var (
	// ErrPlayerClosed is returned by every command after Close.
	ErrPlayerClosed = errors.New("player closed")
	// ErrRetryThrottled is returned when Reload or a retry from Failed comes
	// sooner than the configured minimum interval.
	ErrRetryThrottled = errors.New("retry requested too soon")
	// ErrEstablishTimeout is the failure cause when no media arrives within
	// the establish window.
	ErrEstablishTimeout = errors.New("transport not ready within establish timeout")
	// ErrStallTimeout is the cause carried by adapter stall reports.
	ErrStallTimeout = transport.ErrStallTimeout
)

// Negotiator is the relay side of a session.
type Negotiator interface {
	Negotiate(ctx context.Context, cameraID int64) (relay.SessionHandle, error)
	Release(ctx context.Context, sessionID string)
	Heartbeat(ctx context.Context, sessionID string) error
}

// AdapterFactory returns a fresh, unestablished adapter for each session.
type AdapterFactory func() (transport.Adapter, error)

// Config tunes a Player.
type Config struct {
	Source relay.CameraSource
	// Transport is reported in Status before the first adapter exists.
	Transport transport.Kind

	HeartbeatInterval time.Duration
	EstablishTimeout  time.Duration
	// RetryMinInterval throttles Reload and Play from Failed. Zero disables it.
	RetryMinInterval time.Duration
	ReleaseTimeout   time.Duration

	// OnStateChange runs on the event loop after every transition. It must
	// return quickly and must not call back into the Player.
	OnStateChange func(Status)

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.EstablishTimeout <= 0 {
		c.EstablishTimeout = defaultEstablishTimeout
	}
	if c.ReleaseTimeout <= 0 {
		c.ReleaseTimeout = defaultReleaseTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

type message struct {
	ev     EventKind
	gen    uint64
	handle relay.SessionHandle
	err    error
	at     time.Time
	ack    chan error
}

// Player plays one camera. All methods are safe for concurrent use.
type Player struct {
	cfg        Config
	neg        Negotiator
	newAdapter AdapterFactory
	surface    *transport.Surface
	log        *slog.Logger
	metrics    *metrics.Metrics
	limiter    *rate.Limiter

	events chan message
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce    sync.Once
	pendingStops atomic.Int32
	workers      sync.WaitGroup

	statusMu sync.RWMutex
	status   Status

	// Owned by the loop.
	state   State
	gen     uint64
	sess    *session
	lastErr error
	// held is a failure deferred to a queued stop.
	held    *message
}

// NewPlayer starts a player in Idle. Close must be called to release it.
func NewPlayer(cfg Config, neg Negotiator, newAdapter AdapterFactory, target transport.RenderTarget) *Player {
	cfg = cfg.withDefaults()

	limit := rate.Inf
	if cfg.RetryMinInterval > 0 {
		limit = rate.Every(cfg.RetryMinInterval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		cfg:        cfg,
		neg:        neg,
		newAdapter: newAdapter,
		surface:    transport.NewSurface(target),
		log:        cfg.Logger.With("component", "player", "camera_id", cfg.Source.CameraID),
		metrics:    cfg.Metrics,
		limiter:    rate.NewLimiter(limit, 1),
		events:     make(chan message, eventBuffer),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		state:      StateIdle,
	}
	p.publish()
	go p.loop()
	return p
}

// Play starts streaming. It is a no-op while a session is already underway,
// and a throttled retry when the player is Failed.
func (p *Player) Play(ctx context.Context) error {
	return p.command(ctx, EvPlay)
}

// Stop ends the current session. A fatal error racing with Stop is dropped.
func (p *Player) Stop(ctx context.Context) error {
	p.pendingStops.Add(1)
	return p.command(ctx, EvStop)
}

// Reload stops the current session and negotiates a fresh one. A throttled
// reload is rejected before it can hold back a pending failure.
func (p *Player) Reload(ctx context.Context) error {
	if !p.limiter.Allow() {
		return ErrRetryThrottled
	}
	p.pendingStops.Add(1)
	return p.command(ctx, evReload)
}

// Close stops playback and waits for every background call to finish.
func (p *Player) Close() error {
	p.closeOnce.Do(func() {
		p.pendingStops.Add(1)
		select {
		case p.events <- message{ev: evClose}:
		case <-p.done:
		}
		<-p.done
		p.workers.Wait()
	})
	return nil
}

func (p *Player) command(ctx context.Context, ev EventKind) error {
	ack := make(chan error, 1)
	select {
	case p.events <- message{ev: ev, ack: ack}:
	case <-p.done:
		p.undoPending(ev)
		return ErrPlayerClosed
	case <-ctx.Done():
		p.undoPending(ev)
		return ctx.Err()
	}
	select {
	case err := <-ack:
		return err
	case <-p.done:
		return ErrPlayerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// undoPending withdraws a stop that never reached the loop and lets the loop
// replay any failure it held back for it.
func (p *Player) undoPending(ev EventKind) {
	if ev != EvStop && ev != evReload {
		return
	}
	p.pendingStops.Add(-1)
	select {
	case p.events <- message{ev: evStopWithdrawn}:
	case <-p.done:
	}
}

// post delivers an async result unless its session is gone.
func (p *Player) post(ctx context.Context, m message) bool {
	select {
	case p.events <- m:
		return true
	case <-ctx.Done():
		return false
	case <-p.done:
		return false
	}
}

func (p *Player) loop() {
	defer close(p.done)
	defer p.cancel()
	for m := range p.events {
		if p.handle(m) {
			return
		}
	}
}

// handle applies one message and reports whether the loop must exit.
func (p *Player) handle(m message) bool {
	switch m.ev {
	case EvPlay:
		m.ack <- p.play()
	case EvStop:
		p.pendingStops.Add(-1)
		p.stop()
		m.ack <- nil
	case evReload:
		p.pendingStops.Add(-1)
		m.ack <- p.reload()
	case evClose:
		p.pendingStops.Add(-1)
		p.stop()
		return true
	case evStopWithdrawn:
		p.replayHeld()

	case EvNegotiated:
		if !p.current(m.gen) || p.state != StateNegotiating {
			p.log.Debug("releasing stale negotiation", slog.String("session_id", m.handle.SessionID))
			p.releaseAsync(m.handle.SessionID)
			return false
		}
		p.metrics.ObserveNegotiation("ok")
		p.onNegotiated(m.handle)
	case EvNegotiationFailed:
		if !p.current(m.gen) || p.holdForStop(m) {
			return false
		}
		p.metrics.ObserveNegotiation(negotiationResult(m.err))
		p.fail(EvNegotiationFailed, m.err)

	case EvReady:
		if !p.current(m.gen) {
			return false
		}
		p.onReady()
	case EvStalled:
		if !p.current(m.gen) {
			return false
		}
		p.apply(EvStalled, m.err)
	case EvFatal:
		if !p.current(m.gen) || p.holdForStop(m) {
			return false
		}
		p.fail(EvFatal, m.err)
	case EvEstablishTimeout:
		if !p.current(m.gen) || p.state != StateConnecting {
			return false
		}
		p.fail(EvEstablishTimeout, ErrEstablishTimeout)

	case evProgress:
		if !p.current(m.gen) {
			return false
		}
		p.sess.frames++
		p.metrics.IncFrames(string(p.sess.kind))
		p.publish()
	case evHeartbeatDue:
		if !p.current(m.gen) || !heartbeatAllowed(p.state, p.sess.id) {
			return false
		}
		p.beat(p.sess)
	case evHeartbeatDone:
		if !p.current(m.gen) {
			return false
		}
		p.onHeartbeat(m.err, m.at)
	}
	return false
}

func (p *Player) current(gen uint64) bool {
	return p.sess != nil && p.sess.gen == gen
}

// holdForStop keeps a failure out of sight while a stop is queued behind it.
// The stop destroys the session and the failure with it.
func (p *Player) holdForStop(m message) bool {
	if p.pendingStops.Load() == 0 {
		return false
	}
	p.log.Debug("failure superseded by stop", slog.String("event", m.ev.String()), slog.String("error", errString(m.err)))
	if p.held == nil {
		p.held = &m
	}
	return true
}

// replayHeld applies a held failure once no stop is pending any more.
func (p *Player) replayHeld() {
	m := p.held
	if m == nil || p.pendingStops.Load() > 0 {
		return
	}
	p.held = nil
	p.handle(*m)
}

func (p *Player) play() error {
	switch p.state {
	case StateFailed:
		if !p.limiter.Allow() {
			return ErrRetryThrottled
		}
		p.stop()
		fallthrough
	case StateClosed:
		p.apply(EvReset, nil)
		fallthrough
	case StateIdle:
		p.startSession()
		return nil
	default:
		return nil
	}
}

func (p *Player) reload() error {
	p.stop()
	p.apply(EvReset, nil)
	p.startSession()
	return nil
}

func (p *Player) stop() {
	if p.state == StateClosed {
		return
	}
	p.destroySession()
	p.lastErr = nil
	p.apply(EvStop, nil)
}

// apply runs one table transition and reports whether it happened.
func (p *Player) apply(ev EventKind, cause error) bool {
	from := p.state
	to, ok := Next(from, ev)
	if !ok {
		p.log.Debug("event ignored", slog.String("state", from.String()), slog.String("event", ev.String()))
		return false
	}
	p.state = to
	p.metrics.ObserveTransition(from.String(), to.String())

	attrs := []any{slog.String("from", from.String()), slog.String("to", to.String()), slog.String("event", ev.String())}
	if id := p.sessionID(); id != "" {
		attrs = append(attrs, slog.String("session_id", id))
	}
	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}
	p.log.Info("state change", attrs...)

	st := p.publish()
	if p.cfg.OnStateChange != nil {
		p.cfg.OnStateChange(st)
	}
	return true
}

func negotiationResult(err error) string {
	switch relay.KindOf(err) {
	case relay.KindAuth:
		return "auth"
	case relay.KindNetwork:
		return "network"
	default:
		return "backend"
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
