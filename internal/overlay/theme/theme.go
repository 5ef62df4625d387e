// Package theme implements the overlay's adaptive color sampler: given a
// cached screenshot and a screen point, it decides whether light-on-dark or
// dark-on-light contrasts best and returns the matching palette.
package theme

import (
	"image"
	"sync"
)

// Luminance thresholds (Rec.709 weighted, 0-255 scale).
const (
	darkLuminanceThreshold           = 112
	invertedPanelDarkThreshold       = 45
	statusInvertedPanelDarkThreshold = 132
)

const (
	sampleRadius = 12
	sampleStep   = 4
)

// Palette is the full set of color tokens the overlay renderer needs for one
// draw/status/cursor payload.
type Palette struct {
	Mode          string `json:"mode"`
	Accent        string `json:"accent"`
	BoxStroke     string `json:"boxStroke"`
	Text          string `json:"text"`
	Label         string `json:"label"`
	Thinking      string `json:"thinking"`
	PanelBg       string `json:"panelBg"`
	PanelBorder   string `json:"panelBorder"`
	Meta          string `json:"meta"`
	Divider       string `json:"divider"`
	Shimmer       string `json:"shimmer"`
	StatusBg      string `json:"statusBg"`
	StatusBorder  string `json:"statusBorder"`
	StatusText    string `json:"statusText"`
	StatusShimmer string `json:"statusShimmer"`
	StatusCheck   string `json:"statusCheck"`
	CursorBg      string `json:"cursorBg"`
	CursorBorder  string `json:"cursorBorder"`
	CursorText    string `json:"cursorText"`
	CursorShimmer string `json:"cursorShimmer"`
}

var lightOnDark = Palette{
	Mode: "light-on-dark", Accent: "rgba(160, 200, 255, 0.85)", BoxStroke: "rgba(102, 183, 255, 0.95)",
	Text: "rgba(242, 245, 248, 0.96)", Label: "rgba(255, 255, 255, 0.5)", Thinking: "rgba(210, 215, 224, 0.85)",
	PanelBg: "rgba(14, 14, 18, 0.9)", PanelBorder: "rgba(255, 255, 255, 0.12)", Meta: "rgba(255, 255, 255, 0.7)",
	Divider: "rgba(255, 255, 255, 0.75)", Shimmer: "rgba(255, 255, 255, 1)",
	StatusBg: "rgba(4, 5, 7, 0.96)", StatusBorder: "rgba(255, 255, 255, 0.06)", StatusText: "rgba(242, 245, 248, 0.96)",
	StatusShimmer: "rgba(160, 200, 255, 0.6)", StatusCheck: "rgba(130, 200, 130, 0.9)",
	CursorBg: "rgba(5, 6, 8, 0.92)", CursorBorder: "rgba(255, 255, 255, 0.06)", CursorText: "rgba(242, 245, 248, 0.96)",
	CursorShimmer: "rgba(160, 200, 255, 0.6)",
}

var darkOnLight = Palette{
	Mode: "dark-on-light", Accent: "rgba(55, 120, 220, 0.85)", BoxStroke: "rgba(45, 123, 255, 0.95)",
	Text: "rgba(15, 20, 30, 0.94)", Label: "rgba(15, 20, 30, 0.55)", Thinking: "rgba(35, 40, 55, 0.75)",
	PanelBg: "rgba(248, 250, 252, 0.94)", PanelBorder: "rgba(15, 20, 30, 0.14)", Meta: "rgba(15, 20, 30, 0.6)",
	Divider: "rgba(15, 20, 30, 0.5)", Shimmer: "rgba(60, 120, 220, 0.85)",
	StatusBg: "rgba(245, 248, 252, 0.96)", StatusBorder: "rgba(15, 20, 30, 0.1)", StatusText: "rgba(15, 20, 30, 0.94)",
	StatusShimmer: "rgba(60, 120, 220, 0.55)", StatusCheck: "rgba(60, 120, 220, 0.9)",
	CursorBg: "rgba(246, 249, 252, 0.94)", CursorBorder: "rgba(15, 20, 30, 0.1)", CursorText: "rgba(15, 20, 30, 0.94)",
	CursorShimmer: "rgba(60, 120, 220, 0.55)",
}

func palette(preferLightText bool) Palette {
	if preferLightText {
		return lightOnDark
	}
	return darkOnLight
}

// Sampler holds the last captured screenshot and the last dark/light
// decision, so it can fall back gracefully when no screenshot is cached or
// the cached one looks invalid.
type Sampler struct {
	mu             sync.RWMutex
	screenshot     image.Image
	lastDarkSample bool
}

// NewSampler returns an empty Sampler; SetScreenshot must be called before
// any theme lookup will reflect real screen content.
func NewSampler() *Sampler {
	return &Sampler{}
}

// SetScreenshot replaces the cached screenshot used for luminance sampling.
func (s *Sampler) SetScreenshot(img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screenshot = img
}

// isLikelyInvalidCapture reports whether the image looks like a bad capture
// (e.g. an all-black fallback image): true when at least 90% of a sparse
// 6x6 grid of sample points are near-black.
func isLikelyInvalidCapture(img image.Image) bool {
	if img == nil {
		return true
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return true
	}

	stepX := maxInt(1, width/6)
	stepY := maxInt(1, height/6)

	darkLike, total := 0, 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			r, g, b, _ := img.At(x, y).RGBA()
			total++
			r8, g8, b8 := r>>8, g>>8, b>>8
			if r8 <= 4 && g8 <= 4 && b8 <= 4 {
				darkLike++
			}
		}
	}
	if total == 0 {
		return true
	}
	return float64(darkLike)/float64(total) >= 0.9
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// isDarkAt reports whether the sampled neighborhood around (x, y) is dark by
// the given luminance threshold, falling back to the last decision when no
// usable screenshot is cached.
func (s *Sampler) isDarkAt(x, y int, threshold float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	img := s.screenshot
	if img == nil || isLikelyInvalidCapture(img) {
		return s.lastDarkSample
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return s.lastDarkSample
	}

	px := clamp(x, bounds.Min.X, bounds.Max.X-1)
	py := clamp(y, bounds.Min.Y, bounds.Max.Y-1)

	var luminanceSum float64
	var sampleCount int
	for dy := -sampleRadius; dy <= sampleRadius; dy += sampleStep {
		sy := clamp(py+dy, bounds.Min.Y, bounds.Max.Y-1)
		for dx := -sampleRadius; dx <= sampleRadius; dx += sampleStep {
			sx := clamp(px+dx, bounds.Min.X, bounds.Max.X-1)
			r, g, b, _ := img.At(sx, sy).RGBA()
			luminanceSum += luminance709(r>>8, g>>8, b>>8)
			sampleCount++
		}
	}
	if sampleCount == 0 {
		return s.lastDarkSample
	}

	avgLuminance := luminanceSum / float64(sampleCount)
	isDark := avgLuminance < threshold
	s.lastDarkSample = isDark
	return isDark
}

func luminance709(r, g, b uint32) float64 {
	return 0.2126*float64(r) + 0.7152*float64(g) + 0.0722*float64(b)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ForPoint returns the palette for a generic draw anchored at (x, y).
func (s *Sampler) ForPoint(x, y int) Palette {
	preferLightText := s.isDarkAt(x, y, darkLuminanceThreshold)
	return palette(preferLightText)
}

// ForText returns the palette for a text panel anchored at (x, y), inverted
// so the panel contrasts with what is drawn beneath it.
func (s *Sampler) ForText(x, y int) Palette {
	preferLightText := s.isDarkAt(x, y, invertedPanelDarkThreshold)
	return palette(!preferLightText)
}

// ForStatus returns the palette for the status bubble strip, sampled at the
// top-center of the screen.
func (s *Sampler) ForStatus(screenWidth, screenHeight int) Palette {
	x := screenWidth / 2
	y := 50
	preferLightText := s.isDarkAt(x, y, statusInvertedPanelDarkThreshold)
	return palette(!preferLightText)
}

// ForCursor returns the palette for the cursor-adjacent status pill,
// inverted the same way as ForText.
func (s *Sampler) ForCursor(x, y int) Palette {
	preferLightText := s.isDarkAt(x, y, invertedPanelDarkThreshold)
	return palette(!preferLightText)
}
