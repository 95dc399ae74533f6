package transport

import (
	"bytes"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// decodeFrame decodes one socket message into a picture. Every message is
// self-contained; nothing is carried between frames.
func decodeFrame(data []byte) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame (format=%q, %d bytes): %w", format, len(data), err)
	}
	return img, nil
}
