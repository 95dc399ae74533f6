package transport

import (
	"errors"
	"image"
	"net/url"
	"sync"
)

// RenderTarget is the on-page surface frames are presented to. Concrete
// targets additionally implement one or more of ImagePresenter,
// AccessUnitSink and DocumentHost.
type RenderTarget interface {
	// Reset blanks the surface. Called whenever ownership changes hands.
	Reset()
}

// ImagePresenter draws decoded pictures (raw-frame-socket).
type ImagePresenter interface {
	RenderTarget
	Present(img image.Image) error
}

// AccessUnitSink accepts encoded media for a video-capable surface (segmented-http).
type AccessUnitSink interface {
	RenderTarget
	WriteAccessUnit(au AccessUnit) error
}

// DocumentHost shows a sandboxed document (embedded-document).
type DocumentHost interface {
	RenderTarget
	Embed(u *url.URL) error
}

// AccessUnit is one decoded-from-container unit of media.
type AccessUnit struct {
	Codec string
	Video bool
	PTS   int64
	DTS   int64
	Units [][]byte
}

var (
	// ErrSurfaceBusy is returned by Acquire while another lease is live.
	ErrSurfaceBusy = errors.New("render surface already owned")
	// ErrLeaseReleased is returned by writes through a released lease.
	ErrLeaseReleased = errors.New("render lease released")
)

// Surface guards a RenderTarget so that at most one adapter writes to it.
type Surface struct {
	target RenderTarget

	mu    sync.Mutex
	owner *Lease
}

// NewSurface wraps target.
func NewSurface(target RenderTarget) *Surface {
	return &Surface{target: target}
}

// Acquire hands the surface to a new owner. The previous lease must have been
// released.
func (s *Surface) Acquire() (*Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner != nil {
		return nil, ErrSurfaceBusy
	}
	l := &Lease{surface: s}
	s.owner = l
	s.target.Reset()
	return l, nil
}

// Lease is exclusive write access to a Surface. Writes after Release are
// dropped with ErrLeaseReleased.
type Lease struct {
	surface *Surface

	mu       sync.Mutex
	released bool
}

// CanPresent reports whether the target draws decoded images.
func (l *Lease) CanPresent() bool {
	_, ok := l.surface.target.(ImagePresenter)
	return ok
}

// CanWriteAccessUnits reports whether the target accepts encoded media.
func (l *Lease) CanWriteAccessUnits() bool {
	_, ok := l.surface.target.(AccessUnitSink)
	return ok
}

// CanEmbed reports whether the target hosts documents.
func (l *Lease) CanEmbed() bool {
	_, ok := l.surface.target.(DocumentHost)
	return ok
}

// Present forwards to the target's ImagePresenter.
func (l *Lease) Present(img image.Image) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return ErrLeaseReleased
	}
	p, ok := l.surface.target.(ImagePresenter)
	if !ok {
		return ErrUnsupportedTarget
	}
	return p.Present(img)
}

// WriteAccessUnit forwards to the target's AccessUnitSink.
func (l *Lease) WriteAccessUnit(au AccessUnit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return ErrLeaseReleased
	}
	s, ok := l.surface.target.(AccessUnitSink)
	if !ok {
		return ErrUnsupportedTarget
	}
	return s.WriteAccessUnit(au)
}

// Embed forwards to the target's DocumentHost.
func (l *Lease) Embed(u *url.URL) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return ErrLeaseReleased
	}
	h, ok := l.surface.target.(DocumentHost)
	if !ok {
		return ErrUnsupportedTarget
	}
	return h.Embed(u)
}

// Release gives the surface back and blanks it. Safe to call twice.
func (l *Lease) Release() {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return
	}
	l.released = true
	l.mu.Unlock()

	s := l.surface
	s.mu.Lock()
	if s.owner == l {
		s.owner = nil
		s.target.Reset()
	}
	s.mu.Unlock()
}
