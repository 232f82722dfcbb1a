// Package script drives an annotation workspace from a YAML list of steps:
// key presses, pointer gestures in viewport pixels, navigation, review and
// save. It is how annotation sessions run without a UI.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/annotator/internal/canvas"
	"github.com/lehigh-university-libraries/annotator/internal/models"
	"github.com/lehigh-university-libraries/annotator/internal/workspace"
)

// Script is a session: where to run it and what to do.
type Script struct {
	Dataset  string   `yaml:"dataset"`
	User     string   `yaml:"user"`
	Viewport Viewport `yaml:"viewport"`
	// Confirm answers the unsaved-changes prompt on navigation. Nil means yes.
	Confirm *bool  `yaml:"confirm,omitempty"`
	Steps   []Step `yaml:"steps"`
}

// Viewport is the displayed image area in pixels.
type Viewport struct {
	OffsetX float64 `yaml:"offsetX"`
	OffsetY float64 `yaml:"offsetY"`
	Width   float64 `yaml:"width"`
	Height  float64 `yaml:"height"`
}

// Step is one action. Exactly one field should be set, except Expect which
// may accompany any action and is checked after it.
type Step struct {
	Key      string        `yaml:"key,omitempty"`
	Drag     []float64     `yaml:"drag,flow,omitempty"`
	Click    *Click        `yaml:"click,omitempty"`
	Category string        `yaml:"category,omitempty"`
	Goto     *int          `yaml:"goto,omitempty"`
	Review   string        `yaml:"review,omitempty"`
	Save     bool          `yaml:"save,omitempty"`
	Reload   bool          `yaml:"reload,omitempty"`
	Prelabel bool          `yaml:"prelabel,omitempty"`
	Wait     time.Duration `yaml:"wait,omitempty"`
	Expect   *Expect       `yaml:"expect,omitempty"`
}

// Click is a press and release at one point.
type Click struct {
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Shift bool    `yaml:"shift,omitempty"`
}

// Expect asserts on the workspace after a step.
type Expect struct {
	Image       string `yaml:"image,omitempty"`
	Annotations *int   `yaml:"annotations,omitempty"`
	Selected    *int   `yaml:"selected,omitempty"`
	Unsaved     *bool  `yaml:"unsaved,omitempty"`
}

// ConfirmFunc answers navigation prompts the way the script asks.
func (s Script) ConfirmFunc() func(string) bool {
	answer := s.Confirm == nil || *s.Confirm
	return func(msg string) bool {
		slog.Info("Unsaved changes prompt", "msg", msg, "answer", answer)
		return answer
	}
}

// Load reads a script file.
func Load(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("failed to read script: %w", err)
	}
	return Parse(data)
}

// Parse decodes a script and fills in the default viewport.
func Parse(data []byte) (Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Script{}, fmt.Errorf("failed to parse script: %w", err)
	}
	if s.Viewport.Width <= 0 || s.Viewport.Height <= 0 {
		s.Viewport.Width, s.Viewport.Height = 1000, 1000
	}
	for i, st := range s.Steps {
		if st.Drag != nil && len(st.Drag) != 4 {
			return Script{}, fmt.Errorf("step %d: drag needs x1, y1, x2, y2", i+1)
		}
	}
	return s, nil
}

// Summary is the workspace state at the end of a run.
type Summary struct {
	Dataset     string              `yaml:"dataset"`
	Image       string              `yaml:"image"`
	Steps       int                 `yaml:"steps"`
	Unsaved     bool                `yaml:"unsaved"`
	Conflicts   bool                `yaml:"conflicts"`
	Annotations []models.Annotation `yaml:"annotations"`
}

// Runner executes scripts against an opened workspace.
type Runner struct {
	Workspace *workspace.Workspace
	// Proposer serves prelabel steps. Nil makes them fail.
	Proposer workspace.Proposer
}

// Run executes every step in order and stops at the first failure.
func (r *Runner) Run(ctx context.Context, s Script) (Summary, error) {
	w := r.Workspace
	w.Canvas().SetViewport(canvas.Viewport{
		OffsetX: s.Viewport.OffsetX,
		OffsetY: s.Viewport.OffsetY,
		Width:   s.Viewport.Width,
		Height:  s.Viewport.Height,
	})

	done := 0
	for i, st := range s.Steps {
		if err := ctx.Err(); err != nil {
			return r.summary(s, done), err
		}
		if err := r.step(ctx, st); err != nil {
			return r.summary(s, done), fmt.Errorf("step %d: %w", i+1, err)
		}
		if st.Expect != nil {
			if err := r.check(*st.Expect); err != nil {
				return r.summary(s, done), fmt.Errorf("step %d: %w", i+1, err)
			}
		}
		done++
		slog.Debug("Ran step", "step", i+1, "annotations", len(w.CurrentAnnotations()))
	}
	return r.summary(s, done), nil
}

func (r *Runner) step(ctx context.Context, st Step) error {
	w := r.Workspace
	c := w.Canvas()

	switch {
	case st.Key != "":
		if !w.HandleKey(ctx, workspace.ParseKey(st.Key)) {
			return fmt.Errorf("key %q had no effect", st.Key)
		}
	case st.Drag != nil:
		c.PointerDown(canvas.PointerEvent{X: st.Drag[0], Y: st.Drag[1]})
		c.PointerMove(canvas.PointerEvent{X: st.Drag[2], Y: st.Drag[3]})
		c.PointerUp(canvas.PointerEvent{X: st.Drag[2], Y: st.Drag[3]})
	case st.Click != nil:
		ev := canvas.PointerEvent{X: st.Click.X, Y: st.Click.Y, Shift: st.Click.Shift}
		c.PointerDown(ev)
		c.PointerUp(ev)
	case st.Category != "":
		if !r.selectCategory(st.Category) {
			return fmt.Errorf("unknown category %q", st.Category)
		}
	case st.Goto != nil:
		if !w.GoTo(*st.Goto) {
			return fmt.Errorf("cannot go to image %d", *st.Goto)
		}
	case st.Review != "":
		state, err := models.ParseReviewState(st.Review)
		if err != nil {
			return err
		}
		result, err := w.BulkSetReviewState(ctx, nil, state)
		if err != nil {
			return err
		}
		if result.Failed > 0 {
			return fmt.Errorf("review failed for %d annotations", result.Failed)
		}
	case st.Save:
		result, err := w.Save(ctx)
		if err != nil {
			return err
		}
		if result.Failed > 0 {
			return fmt.Errorf("save failed for %d annotations", result.Failed)
		}
	case st.Reload:
		return w.Reload(ctx)
	case st.Prelabel:
		if r.Proposer == nil {
			return errors.New("prelabel step without a model provider")
		}
		_, err := w.Prelabel(ctx, r.Proposer)
		return err
	case st.Wait > 0:
		select {
		case <-time.After(st.Wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	case st.Expect != nil:
	default:
		return errors.New("empty step")
	}
	return nil
}

func (r *Runner) selectCategory(nameOrID string) bool {
	for _, c := range r.Workspace.Categories() {
		if c.ID == nameOrID || strings.EqualFold(c.Name, nameOrID) {
			return r.Workspace.SelectCategory(c.ID)
		}
	}
	return false
}

func (r *Runner) check(e Expect) error {
	w := r.Workspace
	if e.Image != "" {
		if got := w.Store().CurrentImageID(); got != e.Image {
			return fmt.Errorf("expected image %s, got %s", e.Image, got)
		}
	}
	if e.Annotations != nil {
		if got := len(w.CurrentAnnotations()); got != *e.Annotations {
			return fmt.Errorf("expected %d annotations, got %d", *e.Annotations, got)
		}
	}
	if e.Selected != nil {
		if got := w.Selection().Len(); got != *e.Selected {
			return fmt.Errorf("expected %d selected, got %d", *e.Selected, got)
		}
	}
	if e.Unsaved != nil {
		if got := w.Store().HasUnsavedChanges(); got != *e.Unsaved {
			return fmt.Errorf("expected unsaved=%v, got %v", *e.Unsaved, got)
		}
	}
	return nil
}

func (r *Runner) summary(s Script, steps int) Summary {
	w := r.Workspace
	return Summary{
		Dataset:     s.Dataset,
		Image:       w.Store().CurrentImageID(),
		Steps:       steps,
		Unsaved:     w.Store().HasUnsavedChanges(),
		Conflicts:   w.HasConflicts(),
		Annotations: w.CurrentAnnotations(),
	}
}
