// Package workspace wires the session store, the selection set, the canvas
// controller and the sync layer into one annotation workspace for a dataset.
// Hosts feed it pointer events (through Canvas), key presses and visibility
// changes.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/annotator/internal/canvas"
	"github.com/lehigh-university-libraries/annotator/internal/models"
	"github.com/lehigh-university-libraries/annotator/internal/remotesync"
	"github.com/lehigh-university-libraries/annotator/internal/selection"
	"github.com/lehigh-university-libraries/annotator/internal/session"
)

// ErrNotReady is returned by operations that need an opened workspace with images.
var ErrNotReady = errors.New("workspace not ready")

// Status is the bootstrap state of a workspace.
type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusEmpty
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusEmpty:
		return "empty"
	case StatusFailed:
		return "failed"
	}
	return "loading"
}

// Backend is the REST surface the workspace needs.
type Backend interface {
	remotesync.Backend
	ListAllImages(ctx context.Context, datasetID string, pageSize int) ([]models.Image, error)
	ListCategories(ctx context.Context, datasetID string) ([]models.Category, error)
	CreateCategory(ctx context.Context, datasetID string, cat models.Category) (models.Category, error)
	UpdateCategory(ctx context.Context, datasetID string, cat models.Category) (models.Category, error)
	DeleteCategory(ctx context.Context, datasetID, categoryID string) error
	ReorderCategories(ctx context.Context, datasetID string, ids []string) ([]models.Category, error)
	SetState(ctx context.Context, datasetID, annotationID string, state models.ReviewState, userID string) (models.Annotation, error)
	BulkSetState(ctx context.Context, datasetID string, ids []string, state models.ReviewState, userID string) (models.BulkStateResult, error)
}

// Config configures a workspace. Zero durations use the package defaults.
type Config struct {
	DatasetID     string
	UserID        string
	PageSize      int
	PollInterval  time.Duration
	Debounce      time.Duration
	CacheTTL      time.Duration
	FrameInterval time.Duration
	MaxHistory    int
	Notifier      remotesync.Notifier
	// Confirm is asked before leaving an image with unsaved changes. A nil
	// Confirm allows navigation.
	Confirm func(msg string) bool
	// OnChange runs after every store change.
	OnChange func()
}

// Workspace is one open dataset.
type Workspace struct {
	backend  Backend
	cfg      Config
	notifier remotesync.Notifier

	store     *session.Store
	selection *selection.Set
	canvas    *canvas.Controller
	loader    *remotesync.Loader
	poller    *remotesync.Poller
	saver     *remotesync.Saver

	mu         sync.RWMutex
	status     Status
	openErr    error
	categories []models.Category

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a workspace. Call Open to load the dataset.
func New(backend Backend, cfg Config) *Workspace {
	if cfg.Notifier == nil {
		cfg.Notifier = remotesync.LogNotifier{}
	}
	w := &Workspace{
		backend:   backend,
		cfg:       cfg,
		notifier:  cfg.Notifier,
		selection: selection.New(),
	}

	opts := []session.Option{
		session.WithUser(cfg.UserID),
		session.WithListener(w.storeChanged),
	}
	if cfg.MaxHistory > 0 {
		opts = append(opts, session.WithMaxHistory(cfg.MaxHistory))
	}
	w.store = session.New(opts...)
	w.canvas = canvas.New(w)
	w.loader = remotesync.NewLoader(backend, w.store, cfg.DatasetID, remotesync.LoaderConfig{
		Debounce: cfg.Debounce,
		CacheTTL: cfg.CacheTTL,
		Notifier: cfg.Notifier,
	})
	w.poller = remotesync.NewPoller(backend, w.store, cfg.DatasetID, cfg.PollInterval, cfg.Notifier)
	w.saver = remotesync.NewSaver(backend, w.store, w.loader, cfg.DatasetID, cfg.Notifier)
	w.poller.WatchSaves(w.saver)
	return w
}

// Store exposes the session store for rendering.
func (w *Workspace) Store() *session.Store { return w.store }

// Selection exposes the multi-selection set.
func (w *Workspace) Selection() *selection.Set { return w.selection }

// Canvas exposes the pointer controller.
func (w *Workspace) Canvas() *canvas.Controller { return w.canvas }

// Status returns the bootstrap state.
func (w *Workspace) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// Err returns the bootstrap error of a failed workspace.
func (w *Workspace) Err() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.openErr
}

func (w *Workspace) setStatus(s Status, err error) {
	w.mu.Lock()
	w.status = s
	w.openErr = err
	w.mu.Unlock()
}

// Open loads images and categories, selects the first category and the
// first image, loads its annotations and starts the background loops.
// Zero images leave the workspace in StatusEmpty; a load error leaves it in
// StatusFailed.
func (w *Workspace) Open(ctx context.Context) error {
	w.setStatus(StatusLoading, nil)

	imgs, err := w.backend.ListAllImages(ctx, w.cfg.DatasetID, w.cfg.PageSize)
	if err != nil {
		err = fmt.Errorf("failed to load images: %w", err)
		w.setStatus(StatusFailed, err)
		return err
	}
	cats, err := w.backend.ListCategories(ctx, w.cfg.DatasetID)
	if err != nil {
		err = fmt.Errorf("failed to load categories: %w", err)
		w.setStatus(StatusFailed, err)
		return err
	}

	w.setCategories(cats)
	w.store.LoadImages(imgs)
	if len(imgs) == 0 {
		slog.Info("Dataset has no images to annotate", "dataset", w.cfg.DatasetID)
		w.setStatus(StatusEmpty, nil)
		return nil
	}
	if first := w.Categories(); len(first) > 0 {
		w.store.SetSelectedCategory(first[0].ID)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.canvas.Run(runCtx, w.cfg.FrameInterval)
	}()

	w.showImage(0)
	if _, err := w.loader.Load(ctx, w.store.CurrentImageID()); err != nil {
		w.notifier.Warn("Failed to load annotations", "error", err)
	}
	w.setStatus(StatusReady, nil)
	slog.Info("Workspace ready", "dataset", w.cfg.DatasetID, "images", len(imgs), "categories", len(cats))
	return nil
}

// Close stops every background loop.
func (w *Workspace) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.poller.Stop()
	w.loader.Close()
	w.wg.Wait()
}

func (w *Workspace) ready() bool {
	return w.Status() == StatusReady
}

func (w *Workspace) storeChanged() {
	if w.cfg.OnChange != nil {
		w.cfg.OnChange()
	}
}

// showImage switches to images[index] without any confirmation.
func (w *Workspace) showImage(index int) bool {
	if !w.store.SelectImage(index) {
		return false
	}
	w.canvas.Cancel()
	w.selection.Clear()
	imageID := w.store.CurrentImageID()
	w.poller.Reset(imageID)
	return true
}

// GoTo navigates to images[index], asking Confirm first when there are
// unsaved changes. Annotations load after the debounce window.
func (w *Workspace) GoTo(index int) bool {
	if !w.ready() || index == w.store.CurrentImageIndex() {
		return false
	}
	if index < 0 || index >= len(w.store.Images()) {
		return false
	}
	if w.store.HasUnsavedChanges() && w.cfg.Confirm != nil &&
		!w.cfg.Confirm("You have unsaved changes. Leave this image anyway?") {
		return false
	}
	if !w.showImage(index) {
		return false
	}
	w.loader.Request(w.store.CurrentImageID())
	return true
}

// Next moves to the following image.
func (w *Workspace) Next() bool {
	return w.GoTo(w.store.CurrentImageIndex() + 1)
}

// Previous moves to the preceding image.
func (w *Workspace) Previous() bool {
	return w.GoTo(w.store.CurrentImageIndex() - 1)
}

// Save submits the current image's annotations.
func (w *Workspace) Save(ctx context.Context) (models.BatchResult, error) {
	if !w.ready() {
		return models.BatchResult{}, ErrNotReady
	}
	res, err := w.saver.Save(ctx)
	if err != nil {
		return res, err
	}
	w.selection.Rename(res.IDs)
	return res, nil
}

// Reload replaces the current image's annotations with the backend's copy
// and clears the conflict flag.
func (w *Workspace) Reload(ctx context.Context) error {
	if !w.ready() {
		return ErrNotReady
	}
	imageID := w.store.CurrentImageID()
	if _, err := w.loader.Reload(ctx, imageID); err != nil {
		w.notifier.Warn("Failed to reload annotations", "image", imageID, "error", err)
		return err
	}
	w.pruneSelection()
	w.poller.ClearConflicts()
	return nil
}

// HasConflicts reports whether someone else changed the current image.
func (w *Workspace) HasConflicts() bool {
	return w.poller.HasConflicts()
}

// CheckConflicts compares the current image with the backend now instead of
// waiting for the next poll.
func (w *Workspace) CheckConflicts(ctx context.Context) (bool, error) {
	if !w.ready() {
		return false, ErrNotReady
	}
	return w.poller.Check(ctx, w.store.CurrentImageID())
}

// SetVisible suspends or resumes conflict polling.
func (w *Workspace) SetVisible(visible bool) {
	w.poller.SetVisible(visible)
}

// StartDrawing turns drawing mode on when a category is selected.
func (w *Workspace) StartDrawing() bool {
	if !w.ready() || w.store.SelectedCategoryID() == "" {
		return false
	}
	w.store.SetDrawing(true)
	return true
}

// StopDrawing turns drawing mode off and drops any box in progress.
func (w *Workspace) StopDrawing() {
	w.canvas.Cancel()
	w.store.SetDrawing(false)
}

// ClearSelection empties the selection set and the focused annotation.
func (w *Workspace) ClearSelection() {
	w.selection.Clear()
	w.store.SelectAnnotation("")
}

// DeleteSelected removes the selection set, or the focused annotation when
// nothing is multi-selected.
func (w *Workspace) DeleteSelected() int {
	if !w.ready() {
		return 0
	}
	if w.selection.Len() > 0 {
		n := w.store.DeleteAnnotations(w.selection.IDs())
		w.selection.Clear()
		return n
	}
	if id := w.store.SelectedAnnotationID(); id != "" {
		if w.store.DeleteAnnotation(id) {
			return 1
		}
	}
	return 0
}

// Undo reverts the last edit on the current image.
func (w *Workspace) Undo() bool {
	if !w.ready() || !w.store.Undo() {
		return false
	}
	w.pruneSelection()
	return true
}

// Redo re-applies the last undone edit.
func (w *Workspace) Redo() bool {
	if !w.ready() || !w.store.Redo() {
		return false
	}
	w.pruneSelection()
	return true
}

// pruneSelection drops selected ids that no longer exist on the current image.
func (w *Workspace) pruneSelection() {
	w.selection.Retain(ids(w.store.CurrentAnnotations()))
}

// CurrentAnnotations implements canvas.Target.
func (w *Workspace) CurrentAnnotations() []models.Annotation {
	return w.store.CurrentAnnotations()
}

// SelectedAnnotationID implements canvas.Target.
func (w *Workspace) SelectedAnnotationID() string {
	return w.store.SelectedAnnotationID()
}

// CanDraw implements canvas.Target.
func (w *Workspace) CanDraw() bool {
	return w.ready() && w.store.IsDrawing() && w.store.SelectedCategoryID() != ""
}

// CommitDraw adds a drawn box with the selected category and focuses it.
// Drawing mode stays on.
func (w *Workspace) CommitDraw(bbox models.BBox) {
	cat, ok := w.Category(w.store.SelectedCategoryID())
	if !ok {
		return
	}
	ann, ok := w.store.AddAnnotation(session.NewAnnotation{
		BBox:         bbox,
		CategoryID:   cat.ID,
		CategoryName: cat.Name,
		State:        models.StateDraft,
	})
	if !ok {
		return
	}
	w.store.SelectAnnotation(ann.ID)
}

// CommitEdit stores a moved or resized box.
func (w *Workspace) CommitEdit(id string, bbox models.BBox) {
	w.store.UpdateAnnotation(id, session.Patch{BBox: &bbox})
}

// Click applies click-to-select. A plain click selects and focuses one
// annotation; shift toggles it in the selection set with focus following;
// a plain click on the background clears both.
func (w *Workspace) Click(id string, shift bool) {
	if id == "" {
		if !shift {
			w.ClearSelection()
		}
		return
	}
	if !shift {
		w.selection.Select(id, false)
		w.store.SelectAnnotation(id)
		return
	}
	w.selection.Toggle(id, true)
	if w.selection.Contains(id) {
		w.store.SelectAnnotation(id)
		return
	}
	if w.store.SelectedAnnotationID() == id {
		next := ""
		if remaining := w.selection.IDs(); len(remaining) > 0 {
			next = remaining[len(remaining)-1]
		}
		w.store.SelectAnnotation(next)
	}
}

func ids(anns []models.Annotation) []string {
	out := make([]string, 0, len(anns))
	for _, a := range anns {
		out = append(out, a.ID)
	}
	return out
}

func sortCategories(cats []models.Category) []models.Category {
	out := append([]models.Category(nil), cats...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
