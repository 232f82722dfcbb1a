package script

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/annotator/internal/handlers"
	"github.com/lehigh-university-libraries/annotator/internal/models"
	"github.com/lehigh-university-libraries/annotator/internal/remote"
	"github.com/lehigh-university-libraries/annotator/internal/storage"
	"github.com/lehigh-university-libraries/annotator/internal/workspace"
)

func openWorkspace(t *testing.T, s Script) (*workspace.Workspace, *storage.DatasetStore) {
	t.Helper()
	store := storage.New()
	store.AddDataset(storage.DatasetSeed{
		ID: "ds",
		Images: []models.Image{
			{ID: "img-1", Filename: "a.jpg"},
			{ID: "img-2", Filename: "b.jpg"},
		},
		Categories: []models.Category{
			{ID: "crack", Name: "Crack"},
			{ID: "spall", Name: "Spall", Order: 1},
		},
		Annotations: []models.Annotation{
			{ID: "a1", ImageID: "img-1", BBox: models.BBox{0.1, 0.1, 0.2, 0.2}, CategoryID: "crack", CategoryName: "Crack"},
		},
	})
	srv := httptest.NewServer(handlers.New(store).Routes())
	t.Cleanup(srv.Close)

	w := workspace.New(remote.NewClient(srv.URL, ""), workspace.Config{
		DatasetID:    s.Dataset,
		UserID:       s.User,
		PollInterval: time.Hour,
		Debounce:     5 * time.Millisecond,
		Confirm:      s.ConfirmFunc(),
	})
	t.Cleanup(w.Close)
	if err := w.Open(context.Background()); err != nil {
		t.Fatalf("Expected open to succeed, got %v", err)
	}
	return w, store
}

const session = `
dataset: ds
user: alice
viewport: {width: 800, height: 450}
steps:
  - category: spall
  - key: d
  - drag: [80, 45, 240, 180]
    expect: {annotations: 2, unsaved: true}
  - key: Escape
  - click: {x: 160, y: 160}
    expect: {selected: 1}
  - save: true
    expect: {unsaved: false}
  - review: reviewed
  - key: ArrowRight
    expect: {image: img-2}
  - wait: 20ms
    expect: {annotations: 0}
`

func TestRunSession(t *testing.T) {
	s, err := Parse([]byte(session))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	w, store := openWorkspace(t, s)

	summary, err := (&Runner{Workspace: w}).Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Expected run to succeed, got %v", err)
	}
	if summary.Steps != len(s.Steps) || summary.Image != "img-2" || summary.Unsaved {
		t.Errorf("Unexpected summary %+v", summary)
	}

	stored, _ := store.Annotations("ds", "img-1")
	if len(stored) != 2 {
		t.Fatalf("Expected 2 stored annotations, got %d", len(stored))
	}
	drawn := stored[1]
	if drawn.CategoryID != "spall" || drawn.State != models.StateReviewed || drawn.ReviewedBy != "alice" {
		t.Errorf("Expected reviewed Spall box by alice, got %+v", drawn)
	}
	want := models.BBox{0.1, 0.1, 0.2, 0.3}
	for i := range want {
		if diff := drawn.BBox[i] - want[i]; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("Expected bbox %v, got %v", want, drawn.BBox)
			break
		}
	}
}

func TestRunStopsAtFailedExpectation(t *testing.T) {
	s, err := Parse([]byte(`
dataset: ds
user: alice
steps:
  - key: d
  - expect: {annotations: 5}
  - key: Escape
`))
	if err != nil {
		t.Fatal(err)
	}
	w, _ := openWorkspace(t, s)

	summary, err := (&Runner{Workspace: w}).Run(context.Background(), s)
	if err == nil || !strings.Contains(err.Error(), "step 2: expected 5 annotations, got 1") {
		t.Errorf("Expected failure at step 2, got %v", err)
	}
	if summary.Steps != 1 {
		t.Errorf("Expected 1 completed step, got %d", summary.Steps)
	}
}

func TestRunRejectsBadSteps(t *testing.T) {
	tests := []struct {
		name string
		step string
		want string
	}{
		{"unknown category", "category: rust", `unknown category "rust"`},
		{"dead key", "key: q", `key "q" had no effect`},
		{"prelabel without provider", "prelabel: true", "without a model provider"},
		{"bad review state", "review: done", "invalid review state"},
		{"empty", "{}", "empty step"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse([]byte("dataset: ds\nuser: alice\nsteps:\n  - " + tt.step + "\n"))
			if err != nil {
				t.Fatal(err)
			}
			w, _ := openWorkspace(t, s)
			_, err = (&Runner{Workspace: w}).Run(context.Background(), s)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected %q, got %v", tt.want, err)
			}
		})
	}
}

func TestParse(t *testing.T) {
	s, err := Parse([]byte("dataset: ds\nconfirm: false\nsteps:\n  - goto: 1\n"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if s.Viewport.Width != 1000 || s.Viewport.Height != 1000 {
		t.Errorf("Expected default viewport, got %+v", s.Viewport)
	}
	if s.Steps[0].Goto == nil || *s.Steps[0].Goto != 1 {
		t.Errorf("Expected goto 1, got %+v", s.Steps[0])
	}
	if s.ConfirmFunc()("leave?") {
		t.Error("Expected confirm: false to refuse navigation")
	}

	if _, err := Parse([]byte("steps:\n  - drag: [1, 2, 3]\n")); err == nil {
		t.Error("Expected error for short drag")
	}
	if _, err := Parse([]byte("steps: [")); err == nil {
		t.Error("Expected error for bad YAML")
	}
}
