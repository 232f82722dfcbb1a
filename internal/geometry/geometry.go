// Package geometry converts bounding boxes between displayed-image pixel space
// and normalized [0,1] space, and implements the drag arithmetic used when
// drawing, moving and resizing boxes.
//
// Pixel-space functions work in displayed-image coordinates: callers remove
// any letterbox offset before calling. Scaling between natural and displayed
// size is uniform, so normalizing against the displayed size gives the same
// result as normalizing against the natural size.
package geometry

import (
	"math"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

const (
	// DefaultMinSize is the smallest width or height, in pixels, a drawn box may have.
	DefaultMinSize = 10.0
	// HandleTolerance is the hit zone, in pixels, around each resize handle.
	HandleTolerance = 8.0
)

// Point is a position in displayed-image pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is a rectangle in displayed-image pixel space.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.Left + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// Contains returns true if the point is inside the rectangle (edges included).
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X <= r.Right() &&
		p.Y >= r.Top && p.Y <= r.Bottom()
}

// CalculateBbox normalizes two drag corners into a rectangle with
// non-negative size whose origin is the minimum of both corners.
func CalculateBbox(startX, startY, endX, endY float64) Rect {
	return Rect{
		Left:   math.Min(startX, endX),
		Top:    math.Min(startY, endY),
		Width:  math.Abs(endX - startX),
		Height: math.Abs(endY - startY),
	}
}

// ValidateBbox rejects rectangles narrower or shorter than minSize.
func ValidateBbox(r Rect, minSize float64) bool {
	return r.Width >= minSize && r.Height >= minSize
}

// NormalizeBbox divides a pixel rectangle by the image dimensions.
func NormalizeBbox(r Rect, imageWidth, imageHeight float64) models.BBox {
	if imageWidth <= 0 || imageHeight <= 0 {
		return models.BBox{}
	}
	return models.BBox{
		r.Left / imageWidth,
		r.Top / imageHeight,
		r.Width / imageWidth,
		r.Height / imageHeight,
	}
}

// DenormalizeBbox scales a normalized box back to pixel space.
func DenormalizeBbox(b models.BBox, imageWidth, imageHeight float64) Rect {
	return Rect{
		Left:   b[0] * imageWidth,
		Top:    b[1] * imageHeight,
		Width:  b[2] * imageWidth,
		Height: b[3] * imageHeight,
	}
}

// ClampBbox forces a normalized box inside the unit square, shrinking it
// if it is larger than the image.
func ClampBbox(b models.BBox) models.BBox {
	w := clamp(b[2], 0, 1)
	h := clamp(b[3], 0, 1)
	x := clamp(b[0], 0, 1-w)
	y := clamp(b[1], 0, 1-h)
	return models.BBox{x, y, w, h}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
