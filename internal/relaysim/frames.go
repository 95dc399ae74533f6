package relaysim

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
)

const (
	frameWidth  = 320
	frameHeight = 180
	barWidth    = 24
)

// testPattern draws frame n of a moving bar over a gray background, enough
// to tell a live socket from a frozen one.
func testPattern(n int, cameraID int64) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, frameWidth, frameHeight))
	bg := color.RGBA{R: 40, G: 40, B: 40, A: 255}
	bar := color.RGBA{R: uint8(64 + cameraID*37%192), G: 200, B: 90, A: 255}

	x0 := (n * 8) % frameWidth
	for y := 0; y < frameHeight; y++ {
		for x := 0; x < frameWidth; x++ {
			c := bg
			if d := x - x0; d >= 0 && d < barWidth {
				c = bar
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func encodeFrame(n int, cameraID int64) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testPattern(n, cameraID), &jpeg.Options{Quality: 70}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
