package drawqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimatePanelSizeShortText(t *testing.T) {
	w, h := EstimatePanelSize("hi", 16)
	assert.Equal(t, minPanelWidth, w)
	assert.GreaterOrEqual(t, h, minPanelHeight)
}

func TestEstimatePanelSizeWrapsLongText(t *testing.T) {
	longText := ""
	for i := 0; i < 200; i++ {
		longText += "x"
	}
	w, h := EstimatePanelSize(longText, 16)
	assert.LessOrEqual(t, w, maxPanelWidth)
	assert.Greater(t, h, minPanelHeight)
}

func TestResolveAnchorCenterMiddle(t *testing.T) {
	r := ResolveAnchor(500, 500, 100, 50, "center", "middle", 1000, 1000)
	assert.Equal(t, 450.0, r.X)
	assert.Equal(t, 475.0, r.Y)
}

func TestResolveAnchorClampsToViewportMargin(t *testing.T) {
	r := ResolveAnchor(0, 0, 100, 50, "left", "top", 1000, 1000)
	assert.Equal(t, viewportMargin, r.X)
	assert.Equal(t, viewportMargin, r.Y)
}

func TestPlaceNonOverlappingAcceptsClearSpot(t *testing.T) {
	candidate := Rect{X: 100, Y: 100, W: 100, H: 50}
	r := PlaceNonOverlapping(candidate, 150, 125, nil, 2000, 2000)
	assert.Equal(t, candidate, r)
}

func TestPlaceNonOverlappingFindsRingSlot(t *testing.T) {
	candidate := Rect{X: 100, Y: 100, W: 100, H: 50}
	existing := []Rect{candidate}

	r := PlaceNonOverlapping(candidate, 150, 125, existing, 2000, 2000)
	assert.False(t, r.overlaps(candidate))
}

func TestPlaceNonOverlappingFallsBackWhenSurrounded(t *testing.T) {
	candidate := Rect{X: 1000, Y: 1000, W: 100, H: 50}
	var existing []Rect
	for ring := 0; ring <= maxRings; ring++ {
		for _, off := range ringOffsets(ring) {
			existing = append(existing, Rect{X: candidate.X + off[0], Y: candidate.Y + off[1], W: candidate.W, H: candidate.H})
		}
	}

	r := PlaceNonOverlapping(candidate, 1050, 1025, existing, 2000, 2000)
	assert.NotZero(t, r.W)
}

func TestRingOffsetsHasTwelveCandidates(t *testing.T) {
	offsets := ringOffsets(1)
	assert.Len(t, offsets, 12)
}

func TestToViewportBandIdempotence(t *testing.T) {
	const size = 1920.0

	// Ratio band: a ratio and its pre-multiplied pixel value agree once
	// the pixel result lands in the pass-through band.
	ratio := 0.75
	assert.InDelta(t, ratio*size, ToViewport(ratio, size), 0.001)
	assert.InDelta(t, ToViewport(ratio, size), ToViewport(ratio*size, size), 0.001)

	// Normalized band: a 0-1000 value and its x/1000*size form agree.
	norm := 700.0
	assert.InDelta(t, norm/1000*size, ToViewport(norm, size), 0.001)
	assert.InDelta(t, ToViewport(norm, size), ToViewport(norm/1000*size, size), 0.001)

	// Pixel band: values beyond 1000 pass through unchanged.
	assert.Equal(t, 1500.0, ToViewport(1500, size))
}
