package geometry

import (
	"math"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

// Handle is a compass tag for one of the eight resize handles of a box.
type Handle string

const (
	HandleNone Handle = ""
	HandleNW   Handle = "nw"
	HandleNE   Handle = "ne"
	HandleSW   Handle = "sw"
	HandleSE   Handle = "se"
	HandleN    Handle = "n"
	HandleS    Handle = "s"
	HandleE    Handle = "e"
	HandleW    Handle = "w"
)

// Edges reports which edges of a box move when this handle is dragged.
func (h Handle) Edges() (left, right, top, bottom bool) {
	switch h {
	case HandleNW:
		return true, false, true, false
	case HandleNE:
		return false, true, true, false
	case HandleSW:
		return true, false, false, true
	case HandleSE:
		return false, true, false, true
	case HandleN:
		return false, false, true, false
	case HandleS:
		return false, false, false, true
	case HandleE:
		return false, true, false, false
	case HandleW:
		return true, false, false, false
	}
	return false, false, false, false
}

type handlePos struct {
	handle Handle
	at     Point
}

// handlePositions lists corners before edge midpoints so corners win when
// the hit zones overlap on small boxes.
func handlePositions(r Rect) []handlePos {
	cx := r.Left + r.Width/2
	cy := r.Top + r.Height/2
	return []handlePos{
		{HandleNW, Point{r.Left, r.Top}},
		{HandleNE, Point{r.Right(), r.Top}},
		{HandleSW, Point{r.Left, r.Bottom()}},
		{HandleSE, Point{r.Right(), r.Bottom()}},
		{HandleN, Point{cx, r.Top}},
		{HandleS, Point{cx, r.Bottom()}},
		{HandleE, Point{r.Right(), cy}},
		{HandleW, Point{r.Left, cy}},
	}
}

// GetResizeHandle returns the handle whose tolerance zone contains p, or
// HandleNone.
func GetResizeHandle(p Point, r Rect) Handle {
	for _, hp := range handlePositions(r) {
		if math.Abs(p.X-hp.at.X) <= HandleTolerance && math.Abs(p.Y-hp.at.Y) <= HandleTolerance {
			return hp.handle
		}
	}
	return HandleNone
}

// MoveBbox translates a normalized box by (dx, dy) and clamps its origin to
// [0, 1-w] x [0, 1-h]. Size is unchanged.
func MoveBbox(start models.BBox, dx, dy float64) models.BBox {
	b := ClampBbox(start)
	b[0] = clamp(b[0]+dx, 0, 1-b[2])
	b[1] = clamp(b[1]+dy, 0, 1-b[3])
	return b
}

// ResizeBbox drags the edges selected by h by (dx, dy) in normalized units.
// Opposite edges stay put, and an axis no edge of h touches is only clamped.
// A moving edge stops when the box reaches minW or minH, and the result is
// clamped to the unit square.
func ResizeBbox(start models.BBox, h Handle, dx, dy, minW, minH float64) models.BBox {
	left, right, top, bottom := h.Edges()
	minW = clamp(minW, 0, 1)
	minH = clamp(minH, 0, 1)

	x0, x1 := resizeSpan(start[0], start[0]+start[2], dx, minW, left, right)
	y0, y1 := resizeSpan(start[1], start[1]+start[3], dy, minH, top, bottom)
	return models.BBox{x0, y0, x1 - x0, y1 - y0}
}

// resizeSpan adjusts one axis of a box. lo and hi are the edge positions.
func resizeSpan(lo, hi, delta, minSize float64, moveLo, moveHi bool) (float64, float64) {
	if !moveLo && !moveHi {
		return math.Max(lo, 0), math.Min(hi, 1)
	}
	if moveLo {
		lo = math.Min(lo+delta, hi-minSize)
	}
	if moveHi {
		hi = math.Max(hi+delta, lo+minSize)
	}
	lo = math.Max(lo, 0)
	hi = math.Min(hi, 1)

	// The fixed edge can sit closer than minSize to the border, or the box
	// was undersized to begin with; grow it back inside the unit interval.
	if hi-lo < minSize {
		if moveLo {
			lo = hi - minSize
		} else {
			hi = lo + minSize
		}
		if lo < 0 {
			hi -= lo
			lo = 0
		}
		if hi > 1 {
			lo -= hi - 1
			hi = 1
		}
	}
	return lo, hi
}
