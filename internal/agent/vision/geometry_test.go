package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCropBox_NormalizedCoordsWithPadding(t *testing.T) {
	box := BBox{YMin: 400, XMin: 400, YMax: 420, XMax: 420}
	crop := NormalizeCropBox(box, 1920, 1080, DefaultCropPadPx, true)

	assert.GreaterOrEqual(t, crop.Width(), MinCropSidePx)
	assert.GreaterOrEqual(t, crop.Height(), MinCropSidePx)
	assert.GreaterOrEqual(t, crop.Left, 0)
	assert.GreaterOrEqual(t, crop.Top, 0)
	assert.LessOrEqual(t, crop.Right, 1920)
	assert.LessOrEqual(t, crop.Bottom, 1080)
}

func TestNormalizeCropBox_EnforcesMinimumSize(t *testing.T) {
	// A near-point box (a tenth of a pixel after normalization) must still produce
	// at least a MinCropSidePx square crop.
	box := BBox{YMin: 500, XMin: 500, YMax: 500.1, XMax: 500.1}
	crop := NormalizeCropBox(box, 1000, 1000, 0, false)

	assert.GreaterOrEqual(t, crop.Width(), MinCropSidePx)
	assert.GreaterOrEqual(t, crop.Height(), MinCropSidePx)
}

func TestNormalizeCropBox_RebalancesAtEdge(t *testing.T) {
	// Box hugging the left edge: padding clipped on the left should shift
	// extra width to the right when rebalancing is enabled.
	box := BBox{YMin: 400, XMin: 0, YMax: 420, XMax: 20}
	crop := NormalizeCropBox(box, 1920, 1080, DefaultCropPadPx, true)

	assert.Equal(t, 0, crop.Left)
	assert.Greater(t, crop.Width(), int(DefaultCropPadPx/2))
}

func TestResolveCropAndSearchPoint_MapsBackToFullScreen(t *testing.T) {
	crop := CropBox{Left: 100, Top: 200, Right: 300, Bottom: 400}
	local := BBox{YMin: 500, XMin: 500, YMax: 500, XMax: 500} // dead center, normalized
	pt := ResolveCropAndSearchPoint(crop, local, 0, 0, 1, 1)

	assert.InDelta(t, 200.0, pt.X, 1.0) // left(100) + center(100) of 200-wide crop
	assert.InDelta(t, 300.0, pt.Y, 1.0) // top(200) + center(100) of 200-tall crop
}

func TestResolveCropAndSearchPoint_AppliesWindowOffsetAndScale(t *testing.T) {
	crop := CropBox{Left: 0, Top: 0, Right: 100, Bottom: 100}
	local := BBox{YMin: 0, XMin: 0, YMax: 1000, XMax: 1000} // whole crop
	pt := ResolveCropAndSearchPoint(crop, local, 50, 75, 2, 2)

	assert.InDelta(t, 50.0+25.0, pt.X, 1.0)
	assert.InDelta(t, 75.0+25.0, pt.Y, 1.0)
}

func TestParseBBox_ExtractsFourNumbers(t *testing.T) {
	box, err := ParseBBox("[123, 45.5, 678, 900]")
	require.NoError(t, err)
	assert.Equal(t, BBox{YMin: 123, XMin: 45.5, YMax: 678, XMax: 900}, box)
}

func TestParseBBox_NegativeAndEmbeddedText(t *testing.T) {
	box, err := ParseBBox("the box is [ -5, 10, 200, 300 ] roughly")
	require.NoError(t, err)
	assert.Equal(t, BBox{YMin: -5, XMin: 10, YMax: 200, XMax: 300}, box)
}

func TestParseBBox_TooFewNumbersErrors(t *testing.T) {
	_, err := ParseBBox("no numbers here")
	assert.Error(t, err)
}
