package playback

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"camstream/internal/platform/logger"
	"camstream/internal/relay"
	"camstream/internal/transport"

	"github.com/stretchr/testify/require"
)

type fakeNegotiator struct {
	negotiates atomic.Int32
	releases   atomic.Int32
	heartbeats atomic.Int32
	// clock orders heartbeat calls against marks taken by tests.
	clock atomic.Uint64

	mu           sync.Mutex
	released     []string
	beats        []beatCall
	negotiateErr error
	heartbeatErr error
	// gate, when set, holds Negotiate until closed, ignoring ctx.
	gate chan struct{}
}

func (f *fakeNegotiator) Negotiate(ctx context.Context, cameraID int64) (relay.SessionHandle, error) {
	n := f.negotiates.Add(1)
	f.mu.Lock()
	gate, err := f.gate, f.negotiateErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return relay.SessionHandle{}, err
	}
	id := fmt.Sprintf("s%d", n)
	return relay.SessionHandle{
		SessionID:     id,
		StreamAddress: "/stream/" + id,
		PlayableURL:   &url.URL{Scheme: "https", Host: "relay.example", Path: "/stream/" + id},
		ControlURL:    &url.URL{Scheme: "wss", Host: "relay.example", Path: "/ws/" + id},
	}, nil
}

func (f *fakeNegotiator) Release(ctx context.Context, sessionID string) {
	f.releases.Add(1)
	f.mu.Lock()
	f.released = append(f.released, sessionID)
	f.mu.Unlock()
}

// beatCall is one Heartbeat invocation. live is false when the session
// context was already cancelled, so no request would go out.
type beatCall struct {
	seq  uint64
	id   string
	live bool
}

func (f *fakeNegotiator) Heartbeat(ctx context.Context, sessionID string) error {
	f.heartbeats.Add(1)
	seq := f.clock.Add(1)
	live := ctx.Err() == nil
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beats = append(f.beats, beatCall{seq: seq, id: sessionID, live: live})
	return f.heartbeatErr
}

func (f *fakeNegotiator) beatCalls() []beatCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]beatCall(nil), f.beats...)
}

func (f *fakeNegotiator) setHeartbeatErr(err error) {
	f.mu.Lock()
	f.heartbeatErr = err
	f.mu.Unlock()
}

func (f *fakeNegotiator) releasedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.released...)
}

type fakeAdapter struct {
	kind      transport.Kind
	teardowns atomic.Int32

	established chan struct{}

	mu     sync.Mutex
	emit   transport.Emitter
	handle relay.SessionHandle
}

func (a *fakeAdapter) Kind() transport.Kind { return a.kind }

func (a *fakeAdapter) Establish(ctx context.Context, h relay.SessionHandle, lease *transport.Lease, emit transport.Emitter) {
	a.mu.Lock()
	a.emit = emit
	a.handle = h
	a.mu.Unlock()
	close(a.established)
}

func (a *fakeAdapter) Teardown() { a.teardowns.Add(1) }

func (a *fakeAdapter) establishedWith() relay.SessionHandle {
	<-a.established
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handle
}

func (a *fakeAdapter) send(typ transport.EventType, err error) {
	<-a.established
	a.mu.Lock()
	emit := a.emit
	a.mu.Unlock()
	emit(transport.Event{Type: typ, Err: err, At: time.Now()})
}

type fakeFactory struct {
	kind     transport.Kind
	adapters chan *fakeAdapter
}

func newFakeFactory(kind transport.Kind) *fakeFactory {
	return &fakeFactory{kind: kind, adapters: make(chan *fakeAdapter, 16)}
}

func (f *fakeFactory) New() (transport.Adapter, error) {
	a := &fakeAdapter{kind: f.kind, established: make(chan struct{})}
	f.adapters <- a
	return a, nil
}

func (f *fakeFactory) next(t *testing.T) *fakeAdapter {
	t.Helper()
	select {
	case a := <-f.adapters:
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("no adapter created")
		return nil
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type nullTarget struct{}

func (nullTarget) Reset() {}

type harness struct {
	player  *Player
	neg     *fakeNegotiator
	factory *fakeFactory

	mu     sync.Mutex
	states []State
}

func newHarness(t *testing.T, tweak func(*Config)) *harness {
	t.Helper()
	h := &harness{neg: &fakeNegotiator{}, factory: newFakeFactory(transport.KindSegmentedHTTP)}
	cfg := Config{
		Source:            relay.CameraSource{CameraID: 7, PrimaryAddress: "rtsp://cam.local/1"},
		Transport:         transport.KindSegmentedHTTP,
		HeartbeatInterval: 10 * time.Millisecond,
		EstablishTimeout:  time.Minute,
		Logger:            logger.Discard(),
		OnStateChange: func(st Status) {
			h.mu.Lock()
			h.states = append(h.states, st.State)
			h.mu.Unlock()
		},
	}
	if tweak != nil {
		tweak(&cfg)
	}
	if cfg.Transport != h.factory.kind {
		h.factory.kind = cfg.Transport
	}
	h.player = NewPlayer(cfg, h.neg, h.factory.New, nullTarget{})
	t.Cleanup(func() { h.player.Close() })
	return h
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.player.Status().State == want },
		2*time.Second, 2*time.Millisecond, "want %s, have %s", want, h.player.Status().State)
}

func (h *harness) seen() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...)
}

// playing drives a fresh player into Playing and returns its adapter.
func (h *harness) playing(t *testing.T) *fakeAdapter {
	t.Helper()
	require.NoError(t, h.player.Play(context.Background()))
	a := h.factory.next(t)
	h.waitState(t, StateConnecting)
	a.send(transport.EventReady, nil)
	h.waitState(t, StatePlaying)
	return a
}
