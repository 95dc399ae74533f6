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

	gohlslib "github.com/bluenviron/gohlslib/v2"
	"github.com/bluenviron/gohlslib/v2/pkg/codecs"
	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
)

// maxManifestSize bounds the precheck download.
const maxManifestSize = 1 << 20

// ErrNoVideoTrack is reported when a manifest carries no decodable video.
var ErrNoVideoTrack = errors.New("stream has no supported video track")

// HLSAdapter plays a segmented-HTTP stream. A gohlslib client pulls and
// demuxes segments and feeds access units to the render target.
type HLSAdapter struct {
	opts Options
	log  *slog.Logger

	closed atomic.Bool
	frames atomic.Uint64

	mu       sync.Mutex
	client   *gohlslib.Client
	cancel   context.CancelFunc
	watchdog *watchdog
	wg       sync.WaitGroup
}

// NewHLSAdapter returns an adapter for KindSegmentedHTTP.
func NewHLSAdapter(opts Options) *HLSAdapter {
	opts = opts.withDefaults()
	return &HLSAdapter{opts: opts, log: opts.Logger.With("transport", string(KindSegmentedHTTP))}
}

// Kind implements Adapter.
func (a *HLSAdapter) Kind() Kind { return KindSegmentedHTTP }

// Frames returns the number of access units delivered so far.
func (a *HLSAdapter) Frames() uint64 { return a.frames.Load() }

// Establish implements Adapter.
func (a *HLSAdapter) Establish(ctx context.Context, h relay.SessionHandle, lease *Lease, emit Emitter) {
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

func (a *HLSAdapter) run(ctx context.Context, h relay.SessionHandle, lease *Lease, emit Emitter) {
	if !lease.CanWriteAccessUnits() {
		emit(fatal(KindSegmentedHTTP, "render target", ErrUnsupportedTarget))
		return
	}
	if h.PlayableURL == nil {
		emit(fatal(KindSegmentedHTTP, "manifest", errors.New("no playable address")))
		return
	}
	uri := h.PlayableURL.String()

	if err := a.precheck(ctx, uri); err != nil {
		if ctx.Err() == nil {
			emit(fatal(KindSegmentedHTTP, "manifest", err))
		}
		return
	}

	a.mu.Lock()
	if a.closed.Load() {
		a.mu.Unlock()
		return
	}
	var c *gohlslib.Client
	c = &gohlslib.Client{
		URI:        uri,
		HTTPClient: a.opts.HTTPClient,
		OnTracks: func(tracks []*gohlslib.Track) error {
			return a.onTracks(c, tracks, lease)
		},
		OnDownloadPrimaryPlaylist: a.logDownload("primary playlist"),
		OnDownloadStreamPlaylist:  a.logDownload("stream playlist"),
		OnDownloadSegment:         a.logDownload("segment"),
		OnDownloadPart:            a.logDownload("part"),
		OnDecodeError: func(err error) {
			a.log.Warn("segment decode error", slog.String("session_id", h.SessionID), slog.String("error", err.Error()))
		},
	}
	if err := c.Start(); err != nil {
		a.mu.Unlock()
		emit(fatal(KindSegmentedHTTP, "start client", err))
		return
	}
	a.client = c
	a.mu.Unlock()

	a.log.Debug("hls client started", slog.String("session_id", h.SessionID), slog.String("uri", uri))

	err := c.Wait2()
	if a.closed.Load() {
		return
	}
	if err == nil || errors.Is(err, gohlslib.ErrClientEOS) {
		err = io.EOF
	}
	emit(fatal(KindSegmentedHTTP, "segment pipeline", err))
}

// precheck downloads the manifest once so an unparsable or unreachable
// playlist is reported before the decoder spins up.
func (a *HLSAdapter) precheck(ctx context.Context, uri string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return err
	}
	resp, err := a.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("manifest HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	if _, err := playlist.Unmarshal(data); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	return nil
}

// logDownload keeps the client's download chatter in slog at debug level.
func (a *HLSAdapter) logDownload(what string) func(string) {
	return func(u string) {
		a.log.Debug("downloading "+what, slog.String("url", u))
	}
}

func (a *HLSAdapter) onTracks(c *gohlslib.Client, tracks []*gohlslib.Track, lease *Lease) error {
	video := false
	for _, track := range tracks {
		switch codec := track.Codec.(type) {
		case *codecs.H264:
			video = true
			c.OnDataH26x(track, a.videoWriter("h264", lease))
		case *codecs.H265:
			video = true
			c.OnDataH26x(track, a.videoWriter("h265", lease))
		case *codecs.MPEG4Audio:
			c.OnDataMPEG4Audio(track, a.audioWriter("mpeg4audio", lease))
		case *codecs.Opus:
			c.OnDataOpus(track, a.audioWriter("opus", lease))
		default:
			a.log.Debug("skipping unsupported track", slog.String("codec", fmt.Sprintf("%T", codec)))
		}
	}
	if !video {
		return ErrNoVideoTrack
	}
	return nil
}

func (a *HLSAdapter) videoWriter(codec string, lease *Lease) func(pts int64, dts int64, au [][]byte) {
	return func(pts int64, dts int64, au [][]byte) {
		if a.closed.Load() {
			return
		}
		if err := lease.WriteAccessUnit(AccessUnit{Codec: codec, Video: true, PTS: pts, DTS: dts, Units: au}); err != nil {
			return
		}
		a.frames.Add(1)
		a.watchdog.progress()
	}
}

func (a *HLSAdapter) audioWriter(codec string, lease *Lease) func(pts int64, units [][]byte) {
	return func(pts int64, units [][]byte) {
		if a.closed.Load() {
			return
		}
		lease.WriteAccessUnit(AccessUnit{Codec: codec, PTS: pts, DTS: pts, Units: units})
	}
}

// Teardown implements Adapter.
func (a *HLSAdapter) Teardown() {
	if a.closed.Swap(true) {
		return
	}

	a.mu.Lock()
	cancel := a.cancel
	c := a.client
	wd := a.watchdog
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if wd != nil {
		wd.stop()
	}
	if c != nil {
		c.Close()
	}
	a.wg.Wait()
}
