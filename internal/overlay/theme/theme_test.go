package theme

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func solidImage(c color.Color, w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestForPointDarkBackgroundPrefersLightText(t *testing.T) {
	s := NewSampler()
	s.SetScreenshot(solidImage(color.RGBA{R: 10, G: 10, B: 10, A: 255}, 200, 200))

	p := s.ForPoint(100, 100)
	assert.Equal(t, "light-on-dark", p.Mode)
}

func TestForPointLightBackgroundPrefersDarkText(t *testing.T) {
	s := NewSampler()
	s.SetScreenshot(solidImage(color.RGBA{R: 240, G: 240, B: 240, A: 255}, 200, 200))

	p := s.ForPoint(100, 100)
	assert.Equal(t, "dark-on-light", p.Mode)
}

func TestForTextInvertsRelativeToForPoint(t *testing.T) {
	s := NewSampler()
	s.SetScreenshot(solidImage(color.RGBA{R: 10, G: 10, B: 10, A: 255}, 200, 200))

	text := s.ForText(100, 100)
	assert.Equal(t, "dark-on-light", text.Mode)
}

func TestNoScreenshotRetainsLastDecision(t *testing.T) {
	s := NewSampler()
	s.SetScreenshot(solidImage(color.RGBA{R: 240, G: 240, B: 240, A: 255}, 200, 200))
	first := s.ForPoint(50, 50)

	s.SetScreenshot(nil)
	second := s.ForPoint(50, 50)

	assert.Equal(t, first.Mode, second.Mode)
}

func TestLikelyInvalidCaptureRetainsLastDecision(t *testing.T) {
	s := NewSampler()
	s.SetScreenshot(solidImage(color.RGBA{R: 240, G: 240, B: 240, A: 255}, 200, 200))
	first := s.ForPoint(50, 50)

	s.SetScreenshot(solidImage(color.RGBA{R: 1, G: 1, B: 1, A: 255}, 200, 200))
	second := s.ForPoint(50, 50)

	assert.Equal(t, first.Mode, second.Mode)
}

func TestForStatusSamplesTopCenter(t *testing.T) {
	s := NewSampler()
	s.SetScreenshot(solidImage(color.RGBA{R: 5, G: 5, B: 5, A: 255}, 1920, 1080))

	p := s.ForStatus(1920, 1080)
	assert.Equal(t, "dark-on-light", p.Mode)
}

func TestForCursorUsesInvertedThreshold(t *testing.T) {
	s := NewSampler()
	s.SetScreenshot(solidImage(color.RGBA{R: 60, G: 60, B: 60, A: 255}, 200, 200))

	p := s.ForCursor(100, 100)
	assert.NotEmpty(t, p.Mode)
}

func TestIsLikelyInvalidCapture(t *testing.T) {
	assert.True(t, isLikelyInvalidCapture(nil))
	assert.True(t, isLikelyInvalidCapture(solidImage(color.RGBA{A: 255}, 100, 100)))
	assert.False(t, isLikelyInvalidCapture(solidImage(color.RGBA{R: 200, G: 200, B: 200, A: 255}, 100, 100)))
}
