package vision

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
)

// encodeTestJPEG builds a solid-color w x h image and encodes it as JPEG,
// for tests that need decodable screenshot bytes without any fixture file.
func encodeTestJPEG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 255), G: uint8(y % 255), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
