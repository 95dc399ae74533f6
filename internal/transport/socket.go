package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"camstream/internal/relay"

	"github.com/gorilla/websocket"
)

const closeGrace = time.Second

// ErrSocketClosed is wrapped by the fatal event raised when the relay closes
// a frame socket that was expected to stay open.
var ErrSocketClosed = errors.New("frame socket closed")

// SocketAdapter plays a raw-frame-socket stream: every binary message is one
// encoded picture, decoded on its own and presented to the target.
type SocketAdapter struct {
	opts Options
	log  *slog.Logger

	closed       atomic.Bool
	frames       atomic.Uint64
	decodeErrors atomic.Uint64

	mu       sync.Mutex
	conn     *websocket.Conn
	cancel   context.CancelFunc
	watchdog *watchdog
	wg       sync.WaitGroup
}

// NewSocketAdapter returns an adapter for KindRawFrameSocket.
func NewSocketAdapter(opts Options) *SocketAdapter {
	opts = opts.withDefaults()
	return &SocketAdapter{opts: opts, log: opts.Logger.With("transport", string(KindRawFrameSocket))}
}

// Kind implements Adapter.
func (a *SocketAdapter) Kind() Kind { return KindRawFrameSocket }

// Frames returns the number of pictures presented so far.
func (a *SocketAdapter) Frames() uint64 { return a.frames.Load() }

// DecodeErrors returns the number of messages that could not be decoded.
func (a *SocketAdapter) DecodeErrors() uint64 { return a.decodeErrors.Load() }

// Establish implements Adapter.
func (a *SocketAdapter) Establish(ctx context.Context, h relay.SessionHandle, lease *Lease, emit Emitter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() || a.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	guarded := func(ev Event) {
		if !a.closed.Load() {
			emit(ev)
		}
	}
	a.watchdog = newWatchdog(a.opts.StallTimeout, guarded)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.run(ctx, h, lease, guarded)
	}()
}

func (a *SocketAdapter) run(ctx context.Context, h relay.SessionHandle, lease *Lease, emit Emitter) {
	if !lease.CanPresent() {
		emit(fatal(KindRawFrameSocket, "render target", ErrUnsupportedTarget))
		return
	}
	if h.ControlURL == nil {
		emit(fatal(KindRawFrameSocket, "dial", errors.New("no control address")))
		return
	}

	conn, resp, err := a.opts.Dialer.DialContext(ctx, h.ControlURL.String(), bearerHeader(a.opts.Credentials))
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() == nil {
			emit(fatal(KindRawFrameSocket, "dial", err))
		}
		return
	}

	a.mu.Lock()
	if a.closed.Load() {
		a.mu.Unlock()
		conn.Close()
		return
	}
	a.conn = conn
	a.mu.Unlock()

	a.log.Debug("frame socket open", slog.String("session_id", h.SessionID))

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if a.closed.Load() {
				return
			}
			emit(fatal(KindRawFrameSocket, "read", errors.Join(ErrSocketClosed, err)))
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}

		img, err := decodeFrame(data)
		if err != nil {
			a.decodeErrors.Add(1)
			a.log.Debug("dropping undecodable frame", slog.String("error", err.Error()))
			continue
		}
		if err := lease.Present(img); err != nil {
			if errors.Is(err, ErrLeaseReleased) {
				return
			}
			a.log.Debug("present failed", slog.String("error", err.Error()))
			continue
		}
		a.frames.Add(1)
		a.watchdog.progress()
	}
}

// Teardown implements Adapter.
func (a *SocketAdapter) Teardown() {
	if a.closed.Swap(true) {
		return
	}

	a.mu.Lock()
	cancel := a.cancel
	conn := a.conn
	wd := a.watchdog
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if wd != nil {
		wd.stop()
	}
	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		conn.Close()
	}
	a.wg.Wait()
}
