package drawqueue

import "math"

// Layout constants for the text non-overlap algorithm.
const (
	maxContentWidth = 280.0
	lineHeightRatio = 1.6
	hPadding        = 40.0
	vPadding        = 32.0
	minPanelWidth   = 96.0
	minPanelHeight  = 44.0
	maxPanelWidth   = 320.0
	viewportMargin  = 8.0
	searchGrid      = 28.0
	maxRings        = 10
)

// Rect is an axis-aligned rectangle in viewport pixels.
type Rect struct {
	X, Y, W, H float64
}

func (r Rect) overlaps(o Rect) bool {
	return r.X < o.X+o.W && r.X+r.W > o.X && r.Y < o.Y+o.H && r.Y+r.H > o.Y
}

func (r Rect) overlapArea(o Rect) float64 {
	dx := math.Min(r.X+r.W, o.X+o.W) - math.Max(r.X, o.X)
	dy := math.Min(r.Y+r.H, o.Y+o.H) - math.Max(r.Y, o.Y)
	if dx <= 0 || dy <= 0 {
		return 0
	}
	return dx * dy
}

// estimateCharWidth approximates average glyph advance width as a fraction
// of font size; there is no real text-metrics backend on the server side,
// so layout only needs a stable estimate that is consistent with the
// renderer's own wrapping at maxContentWidth.
func estimateCharWidth(fontSize float64) float64 {
	return fontSize * 0.56
}

// EstimatePanelSize approximates the rendered rectangle of a text panel
// before the renderer has drawn it, using the renderer model's wrap width,
// line height, and padding constants.
func EstimatePanelSize(text string, fontSize float64) (width, height float64) {
	if fontSize <= 0 {
		fontSize = 16
	}
	charWidth := estimateCharWidth(fontSize)
	textWidth := float64(len([]rune(text))) * charWidth
	contentWidth := textWidth
	lines := 1.0
	if contentWidth > maxContentWidth {
		lines = math.Ceil(contentWidth / maxContentWidth)
		contentWidth = maxContentWidth
	}

	width = contentWidth + hPadding
	if width < minPanelWidth {
		width = minPanelWidth
	}
	if width > maxPanelWidth {
		width = maxPanelWidth
	}

	lineHeight := fontSize * lineHeightRatio
	height = lines*lineHeight + vPadding
	if height < minPanelHeight {
		height = minPanelHeight
	}
	return width, height
}

// ResolveAnchor turns an anchor point plus declared alignment into an
// absolute rectangle, clamped to the viewport margin.
func ResolveAnchor(x, y, width, height float64, align, baseline string, viewportW, viewportH float64) Rect {
	rx := x
	switch align {
	case "center":
		rx = x - width/2
	case "right":
		rx = x - width
	}

	ry := y
	switch baseline {
	case "middle":
		ry = y - height/2
	case "bottom":
		ry = y - height
	}

	return clampToViewport(Rect{X: rx, Y: ry, W: width, H: height}, viewportW, viewportH)
}

func clampToViewport(r Rect, viewportW, viewportH float64) Rect {
	minX, minY := viewportMargin, viewportMargin
	maxX, maxY := viewportW-viewportMargin-r.W, viewportH-viewportMargin-r.H

	if maxX < minX {
		maxX = minX
	}
	if maxY < minY {
		maxY = minY
	}

	r.X = clampF(r.X, minX, maxX)
	r.Y = clampF(r.Y, minY, maxY)
	return r
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ringOffsets returns the 12 candidate offsets for one search ring: the 4
// cardinal directions, the 4 diagonals, and the 4 cardinals again at twice
// the step (±2-step cardinal), all scaled by ring*searchGrid.
func ringOffsets(ring int) [12][2]float64 {
	d := float64(ring) * searchGrid
	return [12][2]float64{
		{0, -d}, {0, d}, {d, 0}, {-d, 0}, // cardinal
		{d, -d}, {-d, -d}, {d, d}, {-d, d}, // diagonal
		{0, -2 * d}, {0, 2 * d}, {2 * d, 0}, {-2 * d, 0}, // ±2-step cardinal
	}
}

// PlaceNonOverlapping finds a rectangle for candidate that does not overlap
// any rectangle in existing, searching outward on a fixed grid before
// falling back to the least-overlapping, closest-to-anchor candidate.
func PlaceNonOverlapping(candidate Rect, anchorX, anchorY float64, existing []Rect, viewportW, viewportH float64) Rect {
	if !overlapsAny(candidate, existing) {
		return candidate
	}

	type scored struct {
		rect Rect
		area float64
		dist float64
	}
	var tried []scored
	tried = append(tried, scored{rect: candidate, area: totalOverlap(candidate, existing), dist: 0})

	for ring := 1; ring <= maxRings; ring++ {
		for _, off := range ringOffsets(ring) {
			cand := clampToViewport(Rect{X: candidate.X + off[0], Y: candidate.Y + off[1], W: candidate.W, H: candidate.H}, viewportW, viewportH)
			if !overlapsAny(cand, existing) {
				return cand
			}
			dist := math.Abs((cand.X+cand.W/2)-anchorX) + math.Abs((cand.Y+cand.H/2)-anchorY)
			tried = append(tried, scored{rect: cand, area: totalOverlap(cand, existing), dist: dist})
		}
	}

	best := tried[0]
	for _, t := range tried[1:] {
		if t.area < best.area || (t.area == best.area && t.dist < best.dist) {
			best = t
		}
	}
	return best.rect
}

func overlapsAny(r Rect, existing []Rect) bool {
	for _, o := range existing {
		if r.overlaps(o) {
			return true
		}
	}
	return false
}

func totalOverlap(r Rect, existing []Rect) float64 {
	var total float64
	for _, o := range existing {
		total += r.overlapArea(o)
	}
	return total
}

// ToViewport converts a coordinate in ratio [0,1], normalized [0,1000], or
// raw pixel space into pixels along a viewport axis of the given size.
// A pixel value of 1000 or less is read as normalized, so a ratio and its
// pre-multiplied pixel value resolve to the same point only when that
// pixel value exceeds 1000.
func ToViewport(value, size float64) float64 {
	if value >= 0 && value <= 1 {
		return value * size
	}
	if value >= 0 && value <= 1000 {
		return value / 1000 * size
	}
	return value
}
