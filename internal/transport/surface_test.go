package transport

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSurface_single_owner(t *testing.T) {
	target := &fakeTarget{}
	s := NewSurface(target)

	l1, err := s.Acquire()
	require.NoError(t, err)

	_, err = s.Acquire()
	assert.ErrorIs(t, err, ErrSurfaceBusy)

	l1.Release()
	l2, err := s.Acquire()
	require.NoError(t, err)
	defer l2.Release()

	// Acquire, Release, Acquire each blank the surface.
	resets, _, _ := target.counts()
	assert.Equal(t, 3, resets)
}

func TestLease_writes_after_release_are_dropped(t *testing.T) {
	target := &fakeTarget{}
	l, err := NewSurface(target).Acquire()
	require.NoError(t, err)

	require.NoError(t, l.Present(image.NewGray(image.Rect(0, 0, 1, 1))))
	l.Release()
	l.Release()

	assert.ErrorIs(t, l.Present(image.NewGray(image.Rect(0, 0, 1, 1))), ErrLeaseReleased)
	assert.ErrorIs(t, l.WriteAccessUnit(AccessUnit{Codec: "h264"}), ErrLeaseReleased)
	assert.ErrorIs(t, l.Embed(mustParse(t, "http://x")), ErrLeaseReleased)

	_, images, _ := target.counts()
	assert.Equal(t, 1, images)
}

func TestLease_stale_release_keeps_new_owner(t *testing.T) {
	target := &fakeTarget{}
	s := NewSurface(target)

	old, err := s.Acquire()
	require.NoError(t, err)
	old.Release()

	current, err := s.Acquire()
	require.NoError(t, err)
	old.Release()

	assert.NoError(t, current.Present(image.NewGray(image.Rect(0, 0, 1, 1))))
	_, err = s.Acquire()
	assert.ErrorIs(t, err, ErrSurfaceBusy)
	current.Release()
}

func TestLease_capabilities(t *testing.T) {
	full := newLease(t, &fakeTarget{})
	assert.True(t, full.CanPresent())
	assert.True(t, full.CanWriteAccessUnits())
	assert.True(t, full.CanEmbed())

	blank := newLease(t, blankTarget{})
	assert.False(t, blank.CanPresent())
	assert.False(t, blank.CanWriteAccessUnits())
	assert.False(t, blank.CanEmbed())
	assert.ErrorIs(t, blank.Present(image.NewGray(image.Rect(0, 0, 1, 1))), ErrUnsupportedTarget)
}
