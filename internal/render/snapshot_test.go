package render

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"net/url"
	"testing"

	"camstream/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_JPEG(t *testing.T) {
	s := NewSnapshot()
	_, err := s.JPEG()
	assert.ErrorIs(t, err, ErrNoPicture)

	img := image.NewRGBA(image.Rect(0, 0, 16, 9))
	img.Set(3, 3, color.RGBA{G: 200, A: 255})
	require.NoError(t, s.Present(img))

	data, err := s.JPEG()
	require.NoError(t, err)
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 9), decoded.Bounds())

	st := s.Stats()
	assert.Equal(t, uint64(1), st.Pictures)
	assert.Equal(t, 16, st.Width)
	assert.Equal(t, 9, st.Height)
	assert.False(t, st.LastUpdateAt.IsZero())
}

func TestSnapshot_counts_access_units(t *testing.T) {
	s := NewSnapshot()
	require.NoError(t, s.WriteAccessUnit(transport.AccessUnit{Codec: "h264", Video: true}))
	require.NoError(t, s.WriteAccessUnit(transport.AccessUnit{Codec: "h265", Video: true}))
	require.NoError(t, s.WriteAccessUnit(transport.AccessUnit{Codec: "opus"}))

	st := s.Stats()
	assert.Equal(t, uint64(2), st.VideoUnits)
	assert.Equal(t, uint64(1), st.AudioUnits)
	assert.Equal(t, "h265", st.LastCodec)
}

func TestSnapshot_Reset_blanks(t *testing.T) {
	s := NewSnapshot()
	require.NoError(t, s.Present(image.NewGray(image.Rect(0, 0, 2, 2))))
	require.NoError(t, s.Embed(&url.URL{Scheme: "https", Host: "cam.local", Path: "/live"}))
	assert.Equal(t, "https://cam.local/live", s.Stats().EmbeddedURL)

	s.Reset()
	_, err := s.JPEG()
	assert.ErrorIs(t, err, ErrNoPicture)
	st := s.Stats()
	assert.Zero(t, st.Pictures)
	assert.Empty(t, st.EmbeddedURL)
	assert.Equal(t, uint64(1), st.Resets)
}

func TestSnapshot_rejects_nil(t *testing.T) {
	s := NewSnapshot()
	assert.Error(t, s.Present(nil))
	assert.Error(t, s.Embed(nil))
}

func TestSnapshot_through_surface(t *testing.T) {
	s := NewSnapshot()
	lease, err := transport.NewSurface(s).Acquire()
	require.NoError(t, err)
	assert.True(t, lease.CanPresent())
	assert.True(t, lease.CanWriteAccessUnits())
	assert.True(t, lease.CanEmbed())

	require.NoError(t, lease.Present(image.NewGray(image.Rect(0, 0, 1, 1))))
	lease.Release()
	assert.ErrorIs(t, lease.Present(image.NewGray(image.Rect(0, 0, 1, 1))), transport.ErrLeaseReleased)
	assert.Zero(t, s.Stats().Pictures)
}
