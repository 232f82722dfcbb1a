// Package session holds the in-memory annotation document of one open
// workspace: the image list, the current image, every annotation loaded so
// far, focus and drawing state, and a bounded snapshot-based undo history.
//
// The store performs no I/O. Operations that need a current image are no-ops
// when none is selected.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

// MaxHistory is the default number of snapshots kept for undo/redo.
const MaxHistory = 50

// NewAnnotation carries the caller-provided fields of an annotation being created.
type NewAnnotation struct {
	BBox         models.BBox
	CategoryID   string
	CategoryName string
	State        models.ReviewState
}

// Patch lists the fields UpdateAnnotation merges; nil fields are left alone.
type Patch struct {
	BBox         *models.BBox
	CategoryID   *string
	CategoryName *string
	State        *models.ReviewState
}

// State is a deep copy of the store, safe to hand to renderers.
type State struct {
	Images               []models.Image
	CurrentImageIndex    int
	Annotations          []models.Annotation
	SelectedCategoryID   string
	SelectedAnnotationID string
	IsDrawing            bool
	UnsavedChanges       bool
	HistoryLength        int
	HistoryIndex         int
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator replaces the temporary id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.now = fn }
}

// WithUser sets the user recorded as creator of new annotations.
func WithUser(userID string) Option {
	return func(s *Store) { s.userID = userID }
}

// WithMaxHistory bounds the undo history.
func WithMaxHistory(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxHistory = n
		}
	}
}

// WithListener registers a callback run after every state change.
func WithListener(fn func()) Option {
	return func(s *Store) { s.listener = fn }
}

// Store is the annotation session document.
type Store struct {
	mu sync.RWMutex

	images            []models.Image
	currentImageIndex int
	annotations       []models.Annotation

	selectedCategoryID   string
	selectedAnnotationID string
	drawing              bool
	unsaved              bool

	history      [][]models.Annotation
	historyIndex int
	maxHistory   int

	newID    func() string
	now      func() time.Time
	userID   string
	listener func()
}

// New creates an empty store with no image selected.
func New(opts ...Option) *Store {
	s := &Store{
		currentImageIndex: -1,
		historyIndex:      -1,
		maxHistory:        MaxHistory,
		newID:             func() string { return "local-" + uuid.NewString() },
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) notify() {
	if s.listener != nil {
		s.listener()
	}
}

// LoadImages replaces the image list and clears annotations, history and
// selection. No image is selected afterwards.
func (s *Store) LoadImages(images []models.Image) {
	s.mu.Lock()
	s.images = append([]models.Image(nil), images...)
	s.currentImageIndex = -1
	s.annotations = nil
	s.selectedAnnotationID = ""
	s.drawing = false
	s.unsaved = false
	s.history = nil
	s.historyIndex = -1
	s.mu.Unlock()
	s.notify()
}

// SelectImage makes images[index] current. Annotations are kept; the unsaved
// flag and annotation focus are cleared and history restarts from the new
// image's annotations.
func (s *Store) SelectImage(index int) bool {
	s.mu.Lock()
	if index < 0 || index >= len(s.images) {
		s.mu.Unlock()
		return false
	}
	s.currentImageIndex = index
	s.unsaved = false
	s.selectedAnnotationID = ""
	s.resetHistoryLocked()
	s.mu.Unlock()
	s.notify()
	return true
}

// Images returns a copy of the image list.
func (s *Store) Images() []models.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Image(nil), s.images...)
}

// CurrentImageIndex returns the index of the current image or -1.
func (s *Store) CurrentImageIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentImageIndex
}

// CurrentImage returns the current image, if any.
func (s *Store) CurrentImage() (models.Image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img := s.currentImageLocked()
	if img == nil {
		return models.Image{}, false
	}
	return *img, true
}

// CurrentImageID returns the id of the current image or "".
func (s *Store) CurrentImageID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if img := s.currentImageLocked(); img != nil {
		return img.ID
	}
	return ""
}

func (s *Store) currentImageLocked() *models.Image {
	if s.currentImageIndex < 0 || s.currentImageIndex >= len(s.images) {
		return nil
	}
	return &s.images[s.currentImageIndex]
}

// AddAnnotation appends a new annotation to the current image under a fresh
// temporary id. It returns false when no image is selected.
func (s *Store) AddAnnotation(n NewAnnotation) (models.Annotation, bool) {
	added := s.AddAnnotations([]NewAnnotation{n})
	if len(added) == 0 {
		return models.Annotation{}, false
	}
	return added[0], true
}

// AddAnnotations appends several annotations as a single undo step.
func (s *Store) AddAnnotations(items []NewAnnotation) []models.Annotation {
	s.mu.Lock()
	img := s.currentImageLocked()
	if img == nil || len(items) == 0 {
		s.mu.Unlock()
		return nil
	}
	now := s.now()
	added := make([]models.Annotation, 0, len(items))
	for _, n := range items {
		state := n.State
		if state == "" {
			state = models.StateDraft
		}
		ann := models.Annotation{
			ID:           s.newID(),
			ImageID:      img.ID,
			BBox:         n.BBox,
			CategoryID:   n.CategoryID,
			CategoryName: n.CategoryName,
			State:        state,
			CreatedAt:    now,
			CreatedBy:    s.userID,
		}
		s.annotations = append(s.annotations, ann)
		added = append(added, ann)
	}
	s.unsaved = true
	s.pushHistoryLocked()
	s.mu.Unlock()
	s.notify()
	return added
}

// UpdateAnnotation merges patch into the annotation with the given id.
func (s *Store) UpdateAnnotation(id string, patch Patch) bool {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	ann := &s.annotations[idx]
	if patch.BBox != nil {
		ann.BBox = *patch.BBox
	}
	if patch.CategoryID != nil {
		ann.CategoryID = *patch.CategoryID
	}
	if patch.CategoryName != nil {
		ann.CategoryName = *patch.CategoryName
	}
	if patch.State != nil {
		ann.State = *patch.State
	}
	s.unsaved = true
	s.pushHistoryLocked()
	s.mu.Unlock()
	s.notify()
	return true
}

// DeleteAnnotation removes the annotation with the given id.
func (s *Store) DeleteAnnotation(id string) bool {
	return s.DeleteAnnotations([]string{id}) > 0
}

// DeleteAnnotations removes every listed annotation as one undo step and
// returns how many were removed.
func (s *Store) DeleteAnnotations(ids []string) int {
	if len(ids) == 0 {
		return 0
	}
	remove := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		remove[id] = struct{}{}
	}

	s.mu.Lock()
	before := len(s.annotations)
	s.annotations = lo.Reject(s.annotations, func(a models.Annotation, _ int) bool {
		_, ok := remove[a.ID]
		return ok
	})
	removed := before - len(s.annotations)
	if removed == 0 {
		s.mu.Unlock()
		return 0
	}
	if _, ok := remove[s.selectedAnnotationID]; ok {
		s.selectedAnnotationID = ""
	}
	s.unsaved = true
	s.pushHistoryLocked()
	s.mu.Unlock()
	s.notify()
	return removed
}

// MarkSaved clears the unsaved flag without touching data.
func (s *Store) MarkSaved() {
	s.mu.Lock()
	s.unsaved = false
	s.mu.Unlock()
	s.notify()
}

// HasUnsavedChanges reports whether the current image has local edits.
func (s *Store) HasUnsavedChanges() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unsaved
}

// LoadAnnotations replaces the current image's annotations with remote data
// and clears the unsaved flag.
func (s *Store) LoadAnnotations(remote []models.Annotation) {
	s.mu.Lock()
	img := s.currentImageLocked()
	if img == nil {
		s.mu.Unlock()
		return
	}
	s.loadLocked(img.ID, remote)
	s.mu.Unlock()
	s.notify()
}

// LoadAnnotationsFor loads remote data only if imageID is still the current
// image. It returns false for stale results.
func (s *Store) LoadAnnotationsFor(imageID string, remote []models.Annotation) bool {
	s.mu.Lock()
	img := s.currentImageLocked()
	if img == nil || img.ID != imageID {
		s.mu.Unlock()
		return false
	}
	s.loadLocked(imageID, remote)
	s.mu.Unlock()
	s.notify()
	return true
}

// LoadAnnotationsIfClean is LoadAnnotationsFor that also refuses to
// overwrite unsaved local edits.
func (s *Store) LoadAnnotationsIfClean(imageID string, remote []models.Annotation) bool {
	s.mu.Lock()
	img := s.currentImageLocked()
	if img == nil || img.ID != imageID || s.unsaved {
		s.mu.Unlock()
		return false
	}
	s.loadLocked(imageID, remote)
	s.mu.Unlock()
	s.notify()
	return true
}

func (s *Store) loadLocked(imageID string, remote []models.Annotation) {
	incoming := make([]models.Annotation, 0, len(remote))
	for _, a := range remote {
		if a.ImageID == "" {
			a.ImageID = imageID
		}
		if a.ImageID == imageID {
			incoming = append(incoming, a)
		}
	}
	s.replaceImageLocked(imageID, incoming)
	if s.indexLocked(s.selectedAnnotationID) < 0 {
		s.selectedAnnotationID = ""
	}
	s.unsaved = false
	s.resetHistoryLocked()
}

// ApplySaved reconciles the store with a save response: temporary ids are
// replaced by server ids everywhere (history included) and server
// timestamps are adopted for the saved annotations.
func (s *Store) ApplySaved(idMap map[string]string, saved []models.Annotation) {
	s.mu.Lock()
	remap := func(list []models.Annotation) {
		for i := range list {
			if newID, ok := idMap[list[i].ID]; ok {
				list[i].ID = newID
			}
		}
	}
	remap(s.annotations)
	for _, snap := range s.history {
		remap(snap)
	}
	if newID, ok := idMap[s.selectedAnnotationID]; ok {
		s.selectedAnnotationID = newID
	}

	for _, srv := range saved {
		idx := s.indexLocked(srv.ID)
		if idx < 0 {
			continue
		}
		ann := &s.annotations[idx]
		ann.CreatedAt = srv.CreatedAt
		ann.UpdatedAt = srv.UpdatedAt
		ann.CreatedBy = srv.CreatedBy
		ann.UpdatedBy = srv.UpdatedBy
		for _, snap := range s.history {
			for i := range snap {
				if snap[i].ID == srv.ID {
					snap[i].CreatedAt = srv.CreatedAt
					snap[i].UpdatedAt = srv.UpdatedAt
				}
			}
		}
	}
	s.mu.Unlock()
	s.notify()
}

// ApplyRemote adopts review metadata from server copies of annotations
// without recording an undo step or marking the image unsaved. Geometry and
// category stay as they are locally.
func (s *Store) ApplyRemote(remote ...models.Annotation) int {
	s.mu.Lock()
	count := 0
	adopt := func(dst *models.Annotation, src models.Annotation) {
		dst.State = src.State
		dst.UpdatedAt = src.UpdatedAt
		dst.UpdatedBy = src.UpdatedBy
		dst.ReviewedBy = src.ReviewedBy
		dst.ReviewedAt = src.ReviewedAt
		dst.ApprovedBy = src.ApprovedBy
		dst.ApprovedAt = src.ApprovedAt
	}
	for _, r := range remote {
		idx := s.indexLocked(r.ID)
		if idx < 0 {
			continue
		}
		adopt(&s.annotations[idx], r)
		count++
		for _, snap := range s.history {
			for i := range snap {
				if snap[i].ID == r.ID {
					adopt(&snap[i], r)
				}
			}
		}
	}
	s.mu.Unlock()
	if count > 0 {
		s.notify()
	}
	return count
}

// RenameCategory refreshes the cached category name on every annotation of
// the category. It is not an undoable edit.
func (s *Store) RenameCategory(categoryID, name string) int {
	s.mu.Lock()
	count := 0
	for i := range s.annotations {
		if s.annotations[i].CategoryID == categoryID {
			s.annotations[i].CategoryName = name
			count++
		}
	}
	for _, snap := range s.history {
		for i := range snap {
			if snap[i].CategoryID == categoryID {
				snap[i].CategoryName = name
			}
		}
	}
	s.mu.Unlock()
	if count > 0 {
		s.notify()
	}
	return count
}

// SetDrawing toggles drawing mode.
func (s *Store) SetDrawing(drawing bool) {
	s.mu.Lock()
	s.drawing = drawing
	s.mu.Unlock()
	s.notify()
}

// IsDrawing reports whether drawing mode is on.
func (s *Store) IsDrawing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.drawing
}

// SetSelectedCategory sets the category new boxes are drawn with.
func (s *Store) SetSelectedCategory(id string) {
	s.mu.Lock()
	s.selectedCategoryID = id
	s.mu.Unlock()
	s.notify()
}

// SelectedCategoryID returns the category new boxes are drawn with.
func (s *Store) SelectedCategoryID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedCategoryID
}

// SelectAnnotation focuses a single annotation; "" clears focus.
func (s *Store) SelectAnnotation(id string) {
	s.mu.Lock()
	if id != "" && s.indexLocked(id) < 0 {
		id = ""
	}
	s.selectedAnnotationID = id
	s.mu.Unlock()
	s.notify()
}

// SelectedAnnotationID returns the focused annotation id or "".
func (s *Store) SelectedAnnotationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedAnnotationID
}

// Annotation looks an annotation up by id.
func (s *Store) Annotation(id string) (models.Annotation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return models.Annotation{}, false
	}
	return s.annotations[idx], true
}

// CurrentAnnotations returns a copy of the annotations of the current image,
// which is what gets rendered.
func (s *Store) CurrentAnnotations() []models.Annotation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSliceLocked()
}

// AllAnnotations returns a copy of every annotation across images.
func (s *Store) AllAnnotations() []models.Annotation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Annotation(nil), s.annotations...)
}

// State returns a deep copy of the whole store.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Images:               append([]models.Image(nil), s.images...),
		CurrentImageIndex:    s.currentImageIndex,
		Annotations:          append([]models.Annotation(nil), s.annotations...),
		SelectedCategoryID:   s.selectedCategoryID,
		SelectedAnnotationID: s.selectedAnnotationID,
		IsDrawing:            s.drawing,
		UnsavedChanges:       s.unsaved,
		HistoryLength:        len(s.history),
		HistoryIndex:         s.historyIndex,
	}
}

func (s *Store) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.annotations {
		if s.annotations[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) currentSliceLocked() []models.Annotation {
	img := s.currentImageLocked()
	if img == nil {
		return nil
	}
	return lo.Filter(s.annotations, func(a models.Annotation, _ int) bool {
		return a.ImageID == img.ID
	})
}

// replaceImageLocked swaps the annotations of one image for items, keeping
// every other image's annotations untouched.
func (s *Store) replaceImageLocked(imageID string, items []models.Annotation) {
	kept := lo.Reject(s.annotations, func(a models.Annotation, _ int) bool {
		return a.ImageID == imageID
	})
	s.annotations = append(kept, items...)
}
