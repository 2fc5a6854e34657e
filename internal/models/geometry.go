package models

import "math"

// BBox is an axis-aligned bounding box in pixel coordinates: x1, y1, x2, y2.
type BBox [4]float32

func (b BBox) Width() float32  { return b[2] - b[0] }
func (b BBox) Height() float32 { return b[3] - b[1] }

func (b BBox) Area() float32 {
	w := b.Width()
	h := b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Valid reports whether the box has positive area.
func (b BBox) Valid() bool { return b.Area() > 0 }

// Center returns the box center point.
func (b BBox) Center() (float32, float32) {
	return (b[0] + b[2]) / 2, (b[1] + b[3]) / 2
}

// IoU computes intersection-over-union between two boxes.
func (b BBox) IoU(o BBox) float32 {
	x1 := float32(math.Max(float64(b[0]), float64(o[0])))
	y1 := float32(math.Max(float64(b[1]), float64(o[1])))
	x2 := float32(math.Min(float64(b[2]), float64(o[2])))
	y2 := float32(math.Min(float64(b[3]), float64(o[3])))

	intersection := float32(math.Max(0, float64(x2-x1))) * float32(math.Max(0, float64(y2-y1)))

	union := b.Area() + o.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// CenterDistance returns the euclidean distance between box centers in pixels.
func (b BBox) CenterDistance(o BBox) float32 {
	bx, by := b.Center()
	ox, oy := o.Center()
	dx := float64(bx - ox)
	dy := float64(by - oy)
	return float32(math.Sqrt(dx*dx + dy*dy))
}

func ClampF(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
