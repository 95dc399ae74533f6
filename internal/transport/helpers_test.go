package transport

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/url"
	"sync"
	"testing"
	"time"

	"camstream/internal/platform/logger"
)

const waitEvent = 2 * time.Second

// recorder collects adapter events.
type recorder struct {
	ch chan Event
}

func newRecorder() *recorder { return &recorder{ch: make(chan Event, 1024)} }

func (r *recorder) emit(ev Event) { r.ch <- ev }

// next skips events until one of type typ arrives.
func (r *recorder) next(t *testing.T, typ EventType) Event {
	t.Helper()
	deadline := time.After(waitEvent)
	for {
		select {
		case ev := <-r.ch:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event within %s", typ, waitEvent)
			return Event{}
		}
	}
}

// none asserts that no event of type typ arrives within d.
func (r *recorder) none(t *testing.T, typ EventType, d time.Duration) {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case ev := <-r.ch:
			if ev.Type == typ {
				t.Fatalf("unexpected %s event: %v", typ, ev.Err)
			}
		case <-deadline:
			return
		}
	}
}

// fakeTarget supports every capability.
type fakeTarget struct {
	mu       sync.Mutex
	resets   int
	images   int
	units    []AccessUnit
	embedded []*url.URL
}

func (f *fakeTarget) Reset() {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
}

func (f *fakeTarget) Present(image.Image) error {
	f.mu.Lock()
	f.images++
	f.mu.Unlock()
	return nil
}

func (f *fakeTarget) WriteAccessUnit(au AccessUnit) error {
	f.mu.Lock()
	f.units = append(f.units, au)
	f.mu.Unlock()
	return nil
}

func (f *fakeTarget) Embed(u *url.URL) error {
	f.mu.Lock()
	f.embedded = append(f.embedded, u)
	f.mu.Unlock()
	return nil
}

func (f *fakeTarget) counts() (resets, images int, embedded int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets, f.images, len(f.embedded)
}

// blankTarget can only be reset.
type blankTarget struct{}

func (blankTarget) Reset() {}

func newLease(t *testing.T, target RenderTarget) *Lease {
	t.Helper()
	l, err := NewSurface(target).Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	t.Cleanup(l.Release)
	return l
}

func pngFrame(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func testOptions() Options {
	return Options{StallTimeout: time.Minute, Logger: logger.Discard()}
}

func mustParse(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return u
}
