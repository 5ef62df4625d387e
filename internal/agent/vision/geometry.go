// Package vision implements the Vision Agent: a
// screenshot-driven desktop-control agent that positions and clicks UI
// elements through an injectable Desktop backend, with a secondary
// crop-and-search localization pass for small or crowded targets.
//
// This file holds the crop-box geometry: coordinate normalization
// (ratio / 0-1000 / pixel), fixed-padding expansion with edge
// rebalancing, and the minimum-crop-size floor.
package vision

import (
	"fmt"
	"regexp"
	"strconv"
)

const (
	// MinCropSidePx is the smallest crop width/height allowed before the
	// crop is re-centered and padded out to this floor.
	MinCropSidePx = 32
	// DefaultCropPadPx is the fixed padding applied to each side of a
	// caller-supplied crop box before cropping.
	DefaultCropPadPx = 400.0
)

// BBox is a bounding box in (ymin, xmin, ymax, xmax) order, matching the
// model's own coordinate convention throughout this package.
type BBox struct {
	YMin, XMin, YMax, XMax float64
}

// CropBox is a resolved pixel-space crop region, left/top inclusive,
// right/bottom exclusive.
type CropBox struct {
	Left, Top, Right, Bottom int
}

func (c CropBox) Width() int  { return c.Right - c.Left }
func (c CropBox) Height() int { return c.Bottom - c.Top }

// toPixels converts a coordinate in ratio [0,1], normalized [0,1000], or
// raw pixel space into pixels along an axis of the given size.
func toPixels(value float64, size int) float64 {
	if value >= 0.0 && value <= 1.0 {
		return value * float64(size)
	}
	if value >= 0.0 && value <= 1000.0 {
		return (value / 1000.0) * float64(size)
	}
	return value
}

func clampF(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

// applyPadding expands crop bounds by a fixed amount per side. When a side
// would be clipped by an image edge and rebalance is set, the clipped
// padding is shifted to the opposite side so the target stays closer to
// the crop's center.
func applyPadding(left, top, right, bottom float64, width, height int, padPixels float64, rebalance bool) (float64, float64, float64, float64) {
	pad := padPixels
	if pad < 0 {
		pad = 0
	}

	rawLeft := left - pad
	rawRight := right + pad
	rawTop := top - pad
	rawBottom := bottom + pad

	maxW := float64(width - 1)
	if maxW < 0 {
		maxW = 0
	}
	maxH := float64(height - 1)
	if maxH < 0 {
		maxH = 0
	}

	paddedLeft := clampF(rawLeft, 0, maxW)
	paddedRight := clampF(rawRight, 1, float64(maxInt(width, 1)))
	paddedTop := clampF(rawTop, 0, maxH)
	paddedBottom := clampF(rawBottom, 1, float64(maxInt(height, 1)))

	if rebalance {
		leftClip := maxF(0, paddedLeft-rawLeft)
		rightClip := maxF(0, rawRight-paddedRight)
		topClip := maxF(0, paddedTop-rawTop)
		bottomClip := maxF(0, rawBottom-paddedBottom)

		if leftClip > 0 {
			room := maxF(0, float64(width)-paddedRight)
			paddedRight += minF(leftClip, room)
		}
		if rightClip > 0 {
			room := maxF(0, paddedLeft)
			paddedLeft -= minF(rightClip, room)
		}
		if topClip > 0 {
			room := maxF(0, float64(height)-paddedBottom)
			paddedBottom += minF(topClip, room)
		}
		if bottomClip > 0 {
			room := maxF(0, paddedTop)
			paddedTop -= minF(bottomClip, room)
		}

		paddedLeft = clampF(paddedLeft, 0, maxW)
		paddedRight = clampF(paddedRight, 1, float64(maxInt(width, 1)))
		paddedTop = clampF(paddedTop, 0, maxH)
		paddedBottom = clampF(paddedBottom, 1, float64(maxInt(height, 1)))
	}

	return paddedLeft, paddedTop, paddedRight, paddedBottom
}

// NormalizeCropBox resolves a model-supplied bounding box (in ratio,
// 0-1000, or pixel space) against an image of the given size into a
// padded, min-size-enforced pixel crop region.
func NormalizeCropBox(box BBox, width, height int, padPixels float64, rebalance bool) CropBox {
	top := toPixels(box.YMin, height)
	left := toPixels(box.XMin, width)
	bottom := toPixels(box.YMax, height)
	right := toPixels(box.XMax, width)

	left, right = minMax(left, right)
	top, bottom = minMax(top, bottom)

	maxW := float64(maxInt(width-1, 0))
	maxH := float64(maxInt(height-1, 0))
	left = clampF(left, 0, maxW)
	right = clampF(right, 1, float64(maxInt(width, 1)))
	top = clampF(top, 0, maxH)
	bottom = clampF(bottom, 1, float64(maxInt(height, 1)))

	left, top, right, bottom = applyPadding(left, top, right, bottom, width, height, padPixels, rebalance)

	if (right - left) < MinCropSidePx {
		centerX := (left + right) / 2.0
		half := MinCropSidePx / 2.0
		left = clampF(centerX-half, 0, float64(maxInt(width-MinCropSidePx, 0)))
		right = clampF(left+MinCropSidePx, 1, float64(maxInt(width, 1)))
	}
	if (bottom - top) < MinCropSidePx {
		centerY := (top + bottom) / 2.0
		half := MinCropSidePx / 2.0
		top = clampF(centerY-half, 0, float64(maxInt(height-MinCropSidePx, 0)))
		bottom = clampF(top+MinCropSidePx, 1, float64(maxInt(height, 1)))
	}

	return CropBox{
		Left:   int(roundHalfAwayFromZero(left)),
		Top:    int(roundHalfAwayFromZero(top)),
		Right:  int(roundHalfAwayFromZero(right)),
		Bottom: int(roundHalfAwayFromZero(bottom)),
	}
}

// ClickPoint is a resolved click location plus the crop region it was
// derived from, in full-screen logical coordinates.
type ClickPoint struct {
	X, Y    float64
	CropBox CropBox
}

// ResolveCropAndSearchPoint maps a locator model's bounding box (expressed
// relative to the CROPPED image, 0-1000 normalized) back to full-screen
// logical coordinates, applying the active window's pixel offset and
// scale.
func ResolveCropAndSearchPoint(crop CropBox, localBox BBox, windowOffsetX, windowOffsetY, scaleX, scaleY float64) ClickPoint {
	cropW, cropH := crop.Width(), crop.Height()

	localTop := toPixels(localBox.YMin, cropH)
	localLeft := toPixels(localBox.XMin, cropW)
	localBottom := toPixels(localBox.YMax, cropH)
	localRight := toPixels(localBox.XMax, cropW)

	localLeft, localRight = minMax(localLeft, localRight)
	localTop, localBottom = minMax(localTop, localBottom)

	localLeft = clampF(localLeft, 0, float64(maxInt(cropW-1, 0)))
	localRight = clampF(localRight, 1, float64(maxInt(cropW, 1)))
	localTop = clampF(localTop, 0, float64(maxInt(cropH-1, 0)))
	localBottom = clampF(localBottom, 1, float64(maxInt(cropH, 1)))

	centerXInCrop := localLeft + (localRight-localLeft)/2.0
	centerYInCrop := localTop + (localBottom-localTop)/2.0

	xInWindow := float64(crop.Left) + centerXInCrop
	yInWindow := float64(crop.Top) + centerYInCrop

	if scaleX <= 0 {
		scaleX = 1.0
	}
	if scaleY <= 0 {
		scaleY = 1.0
	}

	return ClickPoint{
		X:       xInWindow/scaleX + windowOffsetX,
		Y:       yInWindow/scaleY + windowOffsetY,
		CropBox: crop,
	}
}

var bboxNumberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// ParseBBox extracts the first four numbers from a locator model's raw
// text response, in [ymin, xmin, ymax, xmax] order.
func ParseBBox(text string) (BBox, error) {
	matches := bboxNumberRe.FindAllString(text, -1)
	if len(matches) < 4 {
		return BBox{}, fmt.Errorf("could not parse bounding box from model response: %q", text)
	}
	vals := make([]float64, 4)
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(matches[i], 64)
		if err != nil {
			return BBox{}, fmt.Errorf("could not parse bounding box from model response: %q", text)
		}
		vals[i] = v
	}
	return BBox{YMin: vals[0], XMin: vals[1], YMax: vals[2], XMax: vals[3]}, nil
}

func minMax(a, b float64) (float64, float64) {
	if a > b {
		return b, a
	}
	return a, b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func roundHalfAwayFromZero(v float64) float64 {
	if v >= 0 {
		return float64(int(v + 0.5))
	}
	return float64(int(v - 0.5))
}
