package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"camstream/internal/relay"
)

// EmbedAdapter is the degraded fallback: it loads the playable address as a
// document and hands it to the target's DocumentHost. Success or failure is
// known only from the load itself; stalls are invisible.
type EmbedAdapter struct {
	opts Options
	log  *slog.Logger

	closed atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEmbedAdapter returns an adapter for KindEmbeddedDocument.
func NewEmbedAdapter(opts Options) *EmbedAdapter {
	opts = opts.withDefaults()
	return &EmbedAdapter{opts: opts, log: opts.Logger.With("transport", string(KindEmbeddedDocument))}
}

// Kind implements Adapter.
func (a *EmbedAdapter) Kind() Kind { return KindEmbeddedDocument }

// Establish implements Adapter.
func (a *EmbedAdapter) Establish(ctx context.Context, h relay.SessionHandle, lease *Lease, emit Emitter) {
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

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.run(ctx, h, lease, guarded)
	}()
}

func (a *EmbedAdapter) run(ctx context.Context, h relay.SessionHandle, lease *Lease, emit Emitter) {
	if !lease.CanEmbed() {
		emit(fatal(KindEmbeddedDocument, "render target", ErrUnsupportedTarget))
		return
	}
	if h.PlayableURL == nil {
		emit(fatal(KindEmbeddedDocument, "load", errors.New("no playable address")))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.PlayableURL.String(), nil)
	if err != nil {
		emit(fatal(KindEmbeddedDocument, "load", err))
		return
	}
	resp, err := a.opts.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			emit(fatal(KindEmbeddedDocument, "load", err))
		}
		return
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxManifestSize))
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		emit(fatal(KindEmbeddedDocument, "load", fmt.Errorf("document HTTP %d", resp.StatusCode)))
		return
	}
	if err := lease.Embed(h.PlayableURL); err != nil {
		if !errors.Is(err, ErrLeaseReleased) {
			emit(fatal(KindEmbeddedDocument, "embed", err))
		}
		return
	}

	a.log.Debug("document embedded", slog.String("session_id", h.SessionID))
	emit(Event{Type: EventReady})
}

// Teardown implements Adapter.
func (a *EmbedAdapter) Teardown() {
	if a.closed.Swap(true) {
		return
	}
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.wg.Wait()
}
