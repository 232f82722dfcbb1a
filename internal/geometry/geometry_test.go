package geometry

import (
	"math"
	"math/rand"
	"testing"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

const eps = 1e-9

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestCalculateBboxAllDirections(t *testing.T) {
	tests := []struct {
		name           string
		startX, startY float64
		endX, endY     float64
		expected       Rect
	}{
		{name: "down right", startX: 10, startY: 20, endX: 110, endY: 70, expected: Rect{10, 20, 100, 50}},
		{name: "down left", startX: 110, startY: 20, endX: 10, endY: 70, expected: Rect{10, 20, 100, 50}},
		{name: "up right", startX: 10, startY: 70, endX: 110, endY: 20, expected: Rect{10, 20, 100, 50}},
		{name: "up left", startX: 110, startY: 70, endX: 10, endY: 20, expected: Rect{10, 20, 100, 50}},
		{name: "zero size", startX: 5, startY: 5, endX: 5, endY: 5, expected: Rect{5, 5, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateBbox(tt.startX, tt.startY, tt.endX, tt.endY)
			if got != tt.expected {
				t.Errorf("Expected %+v, got %+v", tt.expected, got)
			}
			if got.Width < 0 || got.Height < 0 {
				t.Errorf("Expected non-negative size, got %+v", got)
			}
		})
	}
}

func TestCalculateBboxRandomDrags(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		x1, y1 := rng.Float64()*1000-200, rng.Float64()*1000-200
		x2, y2 := rng.Float64()*1000-200, rng.Float64()*1000-200
		r := CalculateBbox(x1, y1, x2, y2)
		if r.Width < 0 || r.Height < 0 {
			t.Fatalf("negative size for (%v,%v)-(%v,%v): %+v", x1, y1, x2, y2, r)
		}
		if r.Left != math.Min(x1, x2) || r.Top != math.Min(y1, y2) {
			t.Fatalf("origin is not the min corner: %+v", r)
		}
	}
}

func TestValidateBbox(t *testing.T) {
	tests := []struct {
		name     string
		rect     Rect
		expected bool
	}{
		{name: "exactly minimum", rect: Rect{0, 0, 10, 10}, expected: true},
		{name: "large", rect: Rect{0, 0, 200, 100}, expected: true},
		{name: "too narrow", rect: Rect{0, 0, 9.99, 50}, expected: false},
		{name: "too short", rect: Rect{0, 0, 50, 9}, expected: false},
		{name: "degenerate click", rect: Rect{5, 5, 0, 0}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateBbox(tt.rect, DefaultMinSize); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestNormalizeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	sizes := [][2]float64{{800, 450}, {1920, 1080}, {333, 777}, {1, 1}}
	for _, size := range sizes {
		for i := 0; i < 200; i++ {
			w := rng.Float64()*0.9 + 0.01
			h := rng.Float64()*0.9 + 0.01
			b := models.BBox{rng.Float64() * (1 - w), rng.Float64() * (1 - h), w, h}

			got := NormalizeBbox(DenormalizeBbox(b, size[0], size[1]), size[0], size[1])
			for k := range b {
				if !almostEqual(got[k], b[k], eps) {
					t.Fatalf("round trip mismatch at %v for %v: %v vs %v", size, b, got, b)
				}
			}
		}
	}
}

func TestNormalizeCrackScenario(t *testing.T) {
	r := CalculateBbox(50, 50, 150, 120)
	if !ValidateBbox(r, DefaultMinSize) {
		t.Fatalf("Expected drag to be valid, got %+v", r)
	}
	got := NormalizeBbox(r, 800, 450)
	expected := models.BBox{0.0625, 0.1111, 0.125, 0.1556}
	for k := range expected {
		if !almostEqual(got[k], expected[k], 1e-4) {
			t.Errorf("Expected %v, got %v", expected, got)
			break
		}
	}
}

func TestGetResizeHandle(t *testing.T) {
	r := Rect{Left: 100, Top: 100, Width: 200, Height: 100}
	tests := []struct {
		name     string
		point    Point
		expected Handle
	}{
		{name: "top left corner", point: Point{100, 100}, expected: HandleNW},
		{name: "top right within tolerance", point: Point{306, 95}, expected: HandleNE},
		{name: "bottom left", point: Point{98, 204}, expected: HandleSW},
		{name: "bottom right", point: Point{300, 200}, expected: HandleSE},
		{name: "top middle", point: Point{200, 103}, expected: HandleN},
		{name: "bottom middle", point: Point{195, 200}, expected: HandleS},
		{name: "right middle", point: Point{300, 150}, expected: HandleE},
		{name: "left middle", point: Point{92, 150}, expected: HandleW},
		{name: "body", point: Point{200, 150}, expected: HandleNone},
		{name: "just outside tolerance", point: Point{91, 91}, expected: HandleNone},
		{name: "along top edge away from handles", point: Point{140, 100}, expected: HandleNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetResizeHandle(tt.point, r); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestGetResizeHandleCornersWinOnTinyBoxes(t *testing.T) {
	r := Rect{Left: 0, Top: 0, Width: 10, Height: 10}
	if got := GetResizeHandle(Point{1, 1}, r); got != HandleNW {
		t.Errorf("Expected nw, got %q", got)
	}
}

func TestMoveBboxStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		w := rng.Float64()*0.8 + 0.05
		h := rng.Float64()*0.8 + 0.05
		start := models.BBox{rng.Float64() * (1 - w), rng.Float64() * (1 - h), w, h}
		dx := (rng.Float64() - 0.5) * 10
		dy := (rng.Float64() - 0.5) * 10

		got := MoveBbox(start, dx, dy)
		if got[0] < 0 || got[0] > 1-w+eps || got[1] < 0 || got[1] > 1-h+eps {
			t.Fatalf("moved box out of bounds: start=%v delta=(%v,%v) got=%v", start, dx, dy, got)
		}
		if !almostEqual(got[2], w, eps) || !almostEqual(got[3], h, eps) {
			t.Fatalf("move changed size: start=%v got=%v", start, got)
		}
	}
}

func TestMoveBboxSimpleDelta(t *testing.T) {
	got := MoveBbox(models.BBox{0.1, 0.2, 0.3, 0.3}, 0.1, -0.1)
	expected := models.BBox{0.2, 0.1, 0.3, 0.3}
	for k := range expected {
		if !almostEqual(got[k], expected[k], eps) {
			t.Fatalf("Expected %v, got %v", expected, got)
		}
	}
}

func TestResizeBboxNeverBelowMinimumOrOutOfBounds(t *testing.T) {
	const imgW, imgH = 800.0, 450.0
	minW := DefaultMinSize / imgW
	minH := DefaultMinSize / imgH
	handles := []Handle{HandleNW, HandleNE, HandleSW, HandleSE, HandleN, HandleS, HandleE, HandleW}
	rng := rand.New(rand.NewSource(11))

	for _, h := range handles {
		for i := 0; i < 500; i++ {
			w := rng.Float64()*0.8 + minW
			hh := rng.Float64()*0.8 + minH
			start := models.BBox{rng.Float64() * (1 - w), rng.Float64() * (1 - hh), w, hh}
			// deltas up to three image sizes in either direction
			dx := (rng.Float64() - 0.5) * 6
			dy := (rng.Float64() - 0.5) * 6

			got := ResizeBbox(start, h, dx, dy, minW, minH)
			if got[2] < minW-eps || got[3] < minH-eps {
				t.Fatalf("handle %s: below minimum: start=%v delta=(%v,%v) got=%v", h, start, dx, dy, got)
			}
			if got[0] < -eps || got[1] < -eps || got[0]+got[2] > 1+eps || got[1]+got[3] > 1+eps {
				t.Fatalf("handle %s: out of bounds: start=%v delta=(%v,%v) got=%v", h, start, dx, dy, got)
			}
		}
	}
}

func TestResizeBboxKeepsOppositeEdges(t *testing.T) {
	start := models.BBox{0.2, 0.2, 0.4, 0.4}
	minW, minH := 0.01, 0.01

	tests := []struct {
		name     string
		handle   Handle
		dx, dy   float64
		expected models.BBox
	}{
		{name: "east grows", handle: HandleE, dx: 0.1, expected: models.BBox{0.2, 0.2, 0.5, 0.4}},
		{name: "west grows", handle: HandleW, dx: -0.1, expected: models.BBox{0.1, 0.2, 0.5, 0.4}},
		{name: "north ignores dx", handle: HandleN, dx: 0.3, dy: 0.1, expected: models.BBox{0.2, 0.3, 0.4, 0.3}},
		{name: "south east", handle: HandleSE, dx: 0.1, dy: 0.1, expected: models.BBox{0.2, 0.2, 0.5, 0.5}},
		{name: "north west clamps at origin", handle: HandleNW, dx: -1, dy: -1, expected: models.BBox{0, 0, 0.6, 0.6}},
		{name: "east shrinks to minimum", handle: HandleE, dx: -2, expected: models.BBox{0.2, 0.2, 0.01, 0.4}},
		{name: "west past east stops at minimum", handle: HandleW, dx: 5, expected: models.BBox{0.59, 0.2, 0.01, 0.4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResizeBbox(start, tt.handle, tt.dx, tt.dy, minW, minH)
			for k := range tt.expected {
				if !almostEqual(got[k], tt.expected[k], 1e-9) {
					t.Errorf("Expected %v, got %v", tt.expected, got)
					break
				}
			}
		})
	}
}

func TestResizeBboxLeavesUntouchedAxis(t *testing.T) {
	minW, minH := 0.0125, 0.0222

	tests := []struct {
		name     string
		start    models.BBox
		handle   Handle
		dx, dy   float64
		expected models.BBox
	}{
		{name: "north on narrow box", start: models.BBox{0.1, 0.1, 0.005, 0.2}, handle: HandleN, dx: 0.2, dy: -0.05, expected: models.BBox{0.1, 0.05, 0.005, 0.25}},
		{name: "south on narrow box", start: models.BBox{0.1, 0.1, 0.005, 0.2}, handle: HandleS, dy: 0.05, expected: models.BBox{0.1, 0.1, 0.005, 0.25}},
		{name: "east on short box", start: models.BBox{0.3, 0.4, 0.2, 0.01}, handle: HandleE, dx: 0.1, dy: 0.3, expected: models.BBox{0.3, 0.4, 0.3, 0.01}},
		{name: "west on short box", start: models.BBox{0.3, 0.4, 0.2, 0.01}, handle: HandleW, dx: -0.1, expected: models.BBox{0.2, 0.4, 0.3, 0.01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResizeBbox(tt.start, tt.handle, tt.dx, tt.dy, minW, minH)
			for k := range tt.expected {
				if !almostEqual(got[k], tt.expected[k], 1e-9) {
					t.Errorf("Expected %v, got %v", tt.expected, got)
					break
				}
			}
		})
	}
}

func TestClampBbox(t *testing.T) {
	got := ClampBbox(models.BBox{0.9, -0.2, 0.3, 1.5})
	expected := models.BBox{0.7, 0, 0.3, 1}
	for k := range expected {
		if !almostEqual(got[k], expected[k], eps) {
			t.Fatalf("Expected %v, got %v", expected, got)
		}
	}
}
