// Package transport turns a negotiated relay session into pictures on a render
// target. Each Adapter implements one transport kind behind the same contract:
// Establish starts the media pipe asynchronously and reports Ready, Stalled,
// Fatal and Progress events; Teardown releases everything synchronously and is
// safe to call any number of times, before or without Establish.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"camstream/internal/relay"

	"github.com/gorilla/websocket"
)

// Kind selects a transport. It is a configuration constant, never inferred per call.
type Kind string

const (
	KindSegmentedHTTP    Kind = "segmented-http"
	KindRawFrameSocket   Kind = "raw-frame-socket"
	KindEmbeddedDocument Kind = "embedded-document"
)

// ParseKind validates a configured transport name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindSegmentedHTTP, KindRawFrameSocket, KindEmbeddedDocument:
		return k, nil
	default:
		return "", fmt.Errorf("unknown transport kind %q", s)
	}
}

// EventType is what an adapter reports about its pipe.
type EventType int

const (
	// EventReady: media is flowing, first time or after a stall.
	EventReady EventType = iota
	// EventStalled: no media within the stall window.
	EventStalled
	// EventFatal: the pipe is broken; Err says why.
	EventFatal
	// EventProgress: one frame or access unit reached the render target.
	EventProgress
)

func (t EventType) String() string {
	switch t {
	case EventReady:
		return "ready"
	case EventStalled:
		return "stalled"
	case EventFatal:
		return "fatal"
	case EventProgress:
		return "progress"
	default:
		return "unknown"
	}
}

// Event is delivered through an Emitter.
type Event struct {
	Type EventType
	Err  error
	At   time.Time
}

// Emitter receives adapter events. It may be called from any goroutine.
type Emitter func(Event)

var (
	// ErrStallTimeout is carried by EventStalled.
	ErrStallTimeout = errors.New("no media within stall window")
	// ErrUnsupportedTarget is reported when the render target lacks the
	// capability a transport needs.
	ErrUnsupportedTarget = errors.New("render target does not support this transport")
)

// FatalError is the Err of an EventFatal.
type FatalError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s transport: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s transport: %s", e.Kind, e.Reason)
}

func (e *FatalError) Unwrap() error { return e.Err }

func fatal(kind Kind, reason string, err error) Event {
	return Event{Type: EventFatal, Err: &FatalError{Kind: kind, Reason: reason, Err: err}, At: time.Now()}
}

// Adapter establishes and tears down one media pipe.
type Adapter interface {
	Kind() Kind
	// Establish returns immediately; results arrive through emit. It is called
	// at most once per adapter.
	Establish(ctx context.Context, h relay.SessionHandle, lease *Lease, emit Emitter)
	// Teardown releases decoder, socket and timers. Idempotent.
	Teardown()
}

// Options are shared by all adapters.
type Options struct {
	// HTTPClient fetches manifests, segments and documents. Bearer credentials
	// are added per request when Credentials is set.
	HTTPClient  *http.Client
	Credentials relay.Credentials
	// Dialer opens frame sockets.
	Dialer *websocket.Dialer
	// StallTimeout is the silence after which a playing pipe reports Stalled.
	StallTimeout time.Duration
	Logger       *slog.Logger
}

const defaultStallTimeout = 10 * time.Second

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	if o.Credentials != nil {
		o.HTTPClient = withBearer(o.HTTPClient, o.Credentials)
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.StallTimeout <= 0 {
		o.StallTimeout = defaultStallTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// New returns a fresh adapter of the given kind.
func New(kind Kind, opts Options) (Adapter, error) {
	switch kind {
	case KindSegmentedHTTP:
		return NewHLSAdapter(opts), nil
	case KindRawFrameSocket:
		return NewSocketAdapter(opts), nil
	case KindEmbeddedDocument:
		return NewEmbedAdapter(opts), nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", kind)
	}
}
