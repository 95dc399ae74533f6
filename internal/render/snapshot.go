// Package render provides a headless render target. It accepts every
// transport's output and keeps just enough of it to serve a still picture
// and some counters.
package render

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"net/url"
	"sync"
	"time"

	"camstream/internal/transport"
)

// ErrNoPicture is returned by JPEG before the first decoded frame.
var ErrNoPicture = errors.New("no picture presented yet")

const jpegQuality = 80

// Stats summarizes what reached the target since the last Reset.
type Stats struct {
	Pictures     uint64    `json:"pictures"`
	VideoUnits   uint64    `json:"videoUnits"`
	AudioUnits   uint64    `json:"audioUnits"`
	LastCodec    string    `json:"lastCodec,omitempty"`
	EmbeddedURL  string    `json:"embeddedUrl,omitempty"`
	LastUpdateAt time.Time `json:"lastUpdateAt,omitzero"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	Resets       uint64    `json:"resets"`
}

// Snapshot implements transport.ImagePresenter, transport.AccessUnitSink
// and transport.DocumentHost.
type Snapshot struct {
	mu     sync.Mutex
	latest image.Image
	stats  Stats
	now    func() time.Time
}

var (
	_ transport.ImagePresenter = (*Snapshot)(nil)
	_ transport.AccessUnitSink = (*Snapshot)(nil)
	_ transport.DocumentHost   = (*Snapshot)(nil)
)

// NewSnapshot returns an empty target.
func NewSnapshot() *Snapshot {
	return &Snapshot{now: time.Now}
}

// Reset blanks the surface.
func (s *Snapshot) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	resets := s.stats.Resets + 1
	s.latest = nil
	s.stats = Stats{Resets: resets}
}

// Present keeps img as the current picture.
func (s *Snapshot) Present(img image.Image) error {
	if img == nil {
		return errors.New("nil picture")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = img
	b := img.Bounds()
	s.stats.Pictures++
	s.stats.Width, s.stats.Height = b.Dx(), b.Dy()
	s.stats.LastUpdateAt = s.now()
	return nil
}

// WriteAccessUnit counts encoded media. Decoding to pixels is left to a real
// video surface.
func (s *Snapshot) WriteAccessUnit(au transport.AccessUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if au.Video {
		s.stats.VideoUnits++
		s.stats.LastCodec = au.Codec
	} else {
		s.stats.AudioUnits++
	}
	s.stats.LastUpdateAt = s.now()
	return nil
}

// Embed records the hosted document.
func (s *Snapshot) Embed(u *url.URL) error {
	if u == nil {
		return errors.New("nil document url")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.EmbeddedURL = u.String()
	s.stats.LastUpdateAt = s.now()
	return nil
}

// JPEG encodes the current picture.
func (s *Snapshot) JPEG() ([]byte, error) {
	s.mu.Lock()
	img := s.latest
	s.mu.Unlock()
	if img == nil {
		return nil, ErrNoPicture
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Stats returns a copy of the counters.
func (s *Snapshot) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
