// Package canvas turns pointer gestures over a displayed image into drawn,
// moved and resized bounding boxes.
//
// Pointer events arrive in container coordinates. The Viewport removes the
// letterbox offset so everything else works in displayed-image pixels.
// Pointer moves only record the latest position; Frame applies at most one
// preview update, and Run calls Frame on a ticker so bursts of moves cost one
// update per frame.
package canvas

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/annotator/internal/geometry"
	"github.com/lehigh-university-libraries/annotator/internal/models"
)

const (
	// DefaultFrameInterval is the preview cadence used by Run when none is given.
	DefaultFrameInterval = 16 * time.Millisecond
	// ClickThreshold is how far, in pixels, the pointer may travel before a
	// press stops counting as a click.
	ClickThreshold = 3.0
)

// Mode is the gesture the controller is in.
type Mode int

const (
	ModeIdle Mode = iota
	ModeDrawing
	ModeEditing
)

func (m Mode) String() string {
	switch m {
	case ModeDrawing:
		return "drawing"
	case ModeEditing:
		return "editing"
	}
	return "idle"
}

// EditKind distinguishes the two editing gestures.
type EditKind int

const (
	EditNone EditKind = iota
	EditMove
	EditResize
)

// PointerEvent is a pointer position in container coordinates.
type PointerEvent struct {
	X, Y  float64
	Shift bool
}

// Viewport places the displayed image inside its container.
type Viewport struct {
	OffsetX float64
	OffsetY float64
	Width   float64
	Height  float64
}

// ToImage converts container coordinates to displayed-image coordinates.
func (v Viewport) ToImage(x, y float64) geometry.Point {
	return geometry.Point{X: x - v.OffsetX, Y: y - v.OffsetY}
}

// Contains reports whether p, in image coordinates, lies on the image.
func (v Viewport) Contains(p geometry.Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X <= v.Width && p.Y <= v.Height
}

func (v Viewport) clamp(p geometry.Point) geometry.Point {
	return geometry.Point{
		X: math.Min(math.Max(p.X, 0), v.Width),
		Y: math.Min(math.Max(p.Y, 0), v.Height),
	}
}

func (v Viewport) valid() bool {
	return v.Width > 0 && v.Height > 0
}

// Target is the annotation source the controller reads from.
type Target interface {
	CurrentAnnotations() []models.Annotation
	SelectedAnnotationID() string
	CanDraw() bool
}

// Drawer receives committed drawings.
type Drawer interface {
	CommitDraw(bbox models.BBox)
}

// Editor receives committed moves and resizes. A Target without it is read-only.
type Editor interface {
	CommitEdit(id string, bbox models.BBox)
}

// Clicker receives presses released without a drag. An empty id is a
// click on the background.
type Clicker interface {
	Click(id string, shift bool)
}

// Preview is the live rectangle of the active gesture.
type Preview struct {
	Mode         Mode
	Edit         EditKind
	Handle       geometry.Handle
	AnnotationID string
	Rect         geometry.Rect
	BBox         models.BBox
}

// Option configures a Controller.
type Option func(*Controller)

// WithMinSize overrides the minimum box size in pixels.
func WithMinSize(px float64) Option {
	return func(c *Controller) { c.minSize = px }
}

// WithPreviewHook registers a callback run after each applied preview update.
func WithPreviewHook(fn func(Preview)) Option {
	return func(c *Controller) { c.onPreview = fn }
}

// Controller is the pointer state machine for one canvas.
type Controller struct {
	mu sync.Mutex

	target   Target
	viewport Viewport
	minSize  float64

	mode   Mode
	edit   EditKind
	handle geometry.Handle

	pressed    bool
	shift      bool
	down       PointerEvent
	dragged    bool
	clickID    string
	start      geometry.Point
	startBox   models.BBox
	editID     string
	pending    *geometry.Point
	preview    Preview
	hasPreview bool

	onPreview func(Preview)
}

// New creates a controller over target.
func New(target Target, opts ...Option) *Controller {
	c := &Controller{
		target:  target,
		minSize: geometry.DefaultMinSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetViewport updates the displayed image placement.
func (c *Controller) SetViewport(v Viewport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport = v
}

// Mode returns the current gesture mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Preview returns the live rectangle, if a drag is in progress.
func (c *Controller) Preview() (Preview, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preview, c.hasPreview
}

// PointerDown starts a gesture.
func (c *Controller) PointerDown(ev PointerEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pressed || !c.viewport.valid() {
		return
	}
	p := c.viewport.ToImage(ev.X, ev.Y)

	if c.target.CanDraw() {
		if !c.viewport.Contains(p) {
			return
		}
		c.begin(ev)
		c.mode = ModeDrawing
		c.start = p
		return
	}

	anns := c.target.CurrentAnnotations()
	if _, ok := c.target.(Editor); ok {
		if sel, found := findAnnotation(anns, c.target.SelectedAnnotationID()); found {
			rect := geometry.DenormalizeBbox(sel.BBox, c.viewport.Width, c.viewport.Height)
			handle := geometry.GetResizeHandle(p, rect)
			if handle != geometry.HandleNone || rect.Contains(p) {
				c.begin(ev)
				c.mode = ModeEditing
				c.edit = EditMove
				if handle != geometry.HandleNone {
					c.edit = EditResize
				}
				c.handle = handle
				c.editID = sel.ID
				c.clickID = sel.ID
				c.start = p
				c.startBox = sel.BBox
				return
			}
		}
	}

	c.begin(ev)
	c.clickID = hitTest(anns, p, c.viewport)
}

func (c *Controller) begin(ev PointerEvent) {
	c.pressed = true
	c.shift = ev.Shift
	c.down = ev
	c.dragged = false
	c.pending = nil
	c.hasPreview = false
	c.clickID = ""
}

// PointerMove records the latest pointer position.
func (c *Controller) PointerMove(ev PointerEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pressed {
		return
	}
	if math.Hypot(ev.X-c.down.X, ev.Y-c.down.Y) > ClickThreshold {
		c.dragged = true
	}
	if c.mode == ModeIdle {
		return
	}
	p := c.viewport.ToImage(ev.X, ev.Y)
	c.pending = &p
}

// Frame applies the latest recorded pointer position to the preview. It
// reports whether anything changed.
func (c *Controller) Frame() bool {
	c.mu.Lock()
	applied := c.applyPending()
	preview, hook := c.preview, c.onPreview
	c.mu.Unlock()
	if applied && hook != nil {
		hook(preview)
	}
	return applied
}

// Run calls Frame every interval until ctx is done.
func (c *Controller) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Frame()
		}
	}
}

func (c *Controller) applyPending() bool {
	if c.pending == nil || c.mode == ModeIdle {
		return false
	}
	p := *c.pending
	c.pending = nil
	w, h := c.viewport.Width, c.viewport.Height

	switch c.mode {
	case ModeDrawing:
		end := c.viewport.clamp(p)
		rect := geometry.CalculateBbox(c.start.X, c.start.Y, end.X, end.Y)
		c.preview = Preview{Mode: ModeDrawing, Rect: rect, BBox: geometry.NormalizeBbox(rect, w, h)}
	case ModeEditing:
		dx := (p.X - c.start.X) / w
		dy := (p.Y - c.start.Y) / h
		var b models.BBox
		if c.edit == EditResize {
			b = geometry.ResizeBbox(c.startBox, c.handle, dx, dy, c.minSize/w, c.minSize/h)
		} else {
			b = geometry.MoveBbox(c.startBox, dx, dy)
		}
		c.preview = Preview{
			Mode:         ModeEditing,
			Edit:         c.edit,
			Handle:       c.handle,
			AnnotationID: c.editID,
			Rect:         geometry.DenormalizeBbox(b, w, h),
			BBox:         b,
		}
	}
	c.hasPreview = true
	return true
}

// PointerUp finishes the gesture and commits its result.
func (c *Controller) PointerUp(ev PointerEvent) {
	c.mu.Lock()
	if !c.pressed {
		c.mu.Unlock()
		return
	}
	if math.Hypot(ev.X-c.down.X, ev.Y-c.down.Y) > ClickThreshold {
		c.dragged = true
	}
	if c.mode != ModeIdle {
		p := c.viewport.ToImage(ev.X, ev.Y)
		c.pending = &p
		c.applyPending()
	}

	commit := c.finish()
	c.reset()
	c.mu.Unlock()

	if commit != nil {
		commit()
	}
}

// PointerLeave ends an active drag as if the pointer had been released.
func (c *Controller) PointerLeave(ev PointerEvent) {
	c.PointerUp(ev)
}

// Cancel aborts the active gesture without committing anything.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// finish decides what the released gesture commits. The returned func runs
// after the lock is released.
func (c *Controller) finish() func() {
	switch c.mode {
	case ModeDrawing:
		drawer, ok := c.target.(Drawer)
		if !ok || !c.hasPreview {
			return nil
		}
		if !geometry.ValidateBbox(c.preview.Rect, c.minSize) {
			return nil
		}
		b := geometry.ClampBbox(c.preview.BBox)
		return func() { drawer.CommitDraw(b) }

	case ModeEditing:
		if !c.dragged {
			return c.click()
		}
		editor, ok := c.target.(Editor)
		if !ok || !c.hasPreview || c.preview.BBox == c.startBox {
			return nil
		}
		id, b := c.editID, c.preview.BBox
		return func() { editor.CommitEdit(id, b) }
	}

	if c.dragged {
		return nil
	}
	return c.click()
}

func (c *Controller) click() func() {
	clicker, ok := c.target.(Clicker)
	if !ok {
		return nil
	}
	id, shift := c.clickID, c.shift
	return func() { clicker.Click(id, shift) }
}

func (c *Controller) reset() {
	c.mode = ModeIdle
	c.edit = EditNone
	c.handle = geometry.HandleNone
	c.pressed = false
	c.shift = false
	c.dragged = false
	c.clickID = ""
	c.editID = ""
	c.pending = nil
	c.preview = Preview{}
	c.hasPreview = false
}

func findAnnotation(anns []models.Annotation, id string) (models.Annotation, bool) {
	if id == "" {
		return models.Annotation{}, false
	}
	for _, a := range anns {
		if a.ID == id {
			return a, true
		}
	}
	return models.Annotation{}, false
}

// hitTest returns the topmost annotation under p, which is the last one drawn.
func hitTest(anns []models.Annotation, p geometry.Point, v Viewport) string {
	for i := len(anns) - 1; i >= 0; i-- {
		rect := geometry.DenormalizeBbox(anns[i].BBox, v.Width, v.Height)
		if rect.Contains(p) {
			return anns[i].ID
		}
	}
	return ""
}
