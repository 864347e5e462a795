package domain

import "math"

// Size is a bitmap size in pixels.
type Size struct {
	Width  int
	Height int
}

// PixelBoxToUnitBox converts a pixel bbox [x0, y0, x1, y1] on a rendered page of
// the given size into normalized (x, y, w, h) clipped to [0,1]. Reversed corners
// are accepted. ok is false when the box is malformed or degenerate.
func PixelBoxToUnitBox(bbox []float64, size Size) (x, y, w, h float64, ok bool) {
	if len(bbox) != 4 || size.Width <= 0 || size.Height <= 0 {
		return 0, 0, 0, 0, false
	}
	for _, v := range bbox {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, 0, 0, 0, false
		}
	}

	pw, ph := float64(size.Width), float64(size.Height)
	x0 := clamp01(math.Min(bbox[0], bbox[2]) / pw)
	x1 := clamp01(math.Max(bbox[0], bbox[2]) / pw)
	y0 := clamp01(math.Min(bbox[1], bbox[3]) / ph)
	y1 := clamp01(math.Max(bbox[1], bbox[3]) / ph)

	if x1-x0 <= 0 || y1-y0 <= 0 {
		return 0, 0, 0, 0, false
	}
	return x0, y0, x1 - x0, y1 - y0, true
}

// AreaChangeFromPixels builds a staged-ready area change for a detection.
func AreaChangeFromPixels(page int, bbox []float64, size Size) (*RedactionChange, bool) {
	x, y, w, h, ok := PixelBoxToUnitBox(bbox, size)
	if !ok {
		return nil, false
	}
	return &RedactionChange{Page: page, Kind: KindArea, X: x, Y: y, Width: w, Height: h}, true
}

// ClipUnit clips an area change to the unit square. ok is false when nothing
// of the box remains on the page.
func ClipUnit(c RedactionChange) (x0, y0, x1, y1 float64, ok bool) {
	x0 = clamp01(c.X)
	y0 = clamp01(c.Y)
	x1 = clamp01(c.X + c.Width)
	y1 = clamp01(c.Y + c.Height)
	return x0, y0, x1, y1, x1 > x0 && y1 > y0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
