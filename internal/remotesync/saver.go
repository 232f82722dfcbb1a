package remotesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

var (
	// ErrSaveInProgress is returned when Save is called while a save is running.
	ErrSaveInProgress = errors.New("save already in progress")
	// ErrNoImage is returned when there is no current image to save.
	ErrNoImage = errors.New("no image selected")
)

// Saver submits the current image's annotations.
type Saver struct {
	backend   Backend
	store     Store
	loader    *Loader
	datasetID string
	notifier  Notifier
	saving    atomic.Bool
	gen       atomic.Uint64
}

// NewSaver creates a saver. loader may be nil; when set its cache is
// invalidated after a save and its known ids drive remote deletes.
func NewSaver(backend Backend, store Store, loader *Loader, datasetID string, notifier Notifier) *Saver {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Saver{
		backend:   backend,
		store:     store,
		loader:    loader,
		datasetID: datasetID,
		notifier:  notifier,
	}
}

// Saving reports whether a save is running.
func (s *Saver) Saving() bool {
	return s.saving.Load()
}

// Generation counts finished saves.
func (s *Saver) Generation() uint64 {
	return s.gen.Load()
}

// Save batch-submits the current image's annotations and deletes the ones
// removed locally since the last load. On a network failure nothing is
// rolled back and the unsaved flag stays set. On partial failure the flag is
// still cleared and the counts are reported.
func (s *Saver) Save(ctx context.Context) (models.BatchResult, error) {
	if !s.saving.CompareAndSwap(false, true) {
		return models.BatchResult{}, ErrSaveInProgress
	}
	defer s.saving.Store(false)
	defer s.gen.Add(1)

	imageID := s.store.CurrentImageID()
	if imageID == "" {
		return models.BatchResult{}, ErrNoImage
	}
	anns := s.store.CurrentAnnotations()

	res, err := s.backend.SaveBatch(ctx, s.datasetID, anns)
	if err != nil {
		s.notifier.Warn("Failed to save annotations", "image", imageID, "error", err)
		return models.BatchResult{}, fmt.Errorf("failed to save annotations: %w", err)
	}

	undeleted := s.deleteRemoved(ctx, imageID, anns, &res)

	s.store.ApplySaved(res.IDs, res.Annotations)
	if s.store.CurrentImageID() == imageID {
		s.store.MarkSaved()
	}
	if s.loader != nil {
		s.loader.Invalidate(imageID)
		s.loader.setKnownIDs(imageID, append(ids(remap(stored(anns, res.Errors), res.IDs)), undeleted...))
	}

	if res.Failed > 0 {
		for _, e := range res.Errors {
			slog.Warn("Annotation not saved", "id", e.ID, "reason", e.Message)
		}
		s.notifier.Warn("Some annotations were not saved", "saved", res.Saved, "failed", res.Failed)
	} else {
		s.notifier.Info("Annotations saved", "image", imageID, "count", res.Saved)
	}
	return res, nil
}

// deleteRemoved deletes remote annotations missing locally and returns the
// ids it could not delete.
func (s *Saver) deleteRemoved(ctx context.Context, imageID string, anns []models.Annotation, res *models.BatchResult) []string {
	if s.loader == nil {
		return nil
	}
	var undeleted []string
	local := make(map[string]struct{}, len(anns))
	for _, a := range anns {
		local[a.ID] = struct{}{}
	}
	for _, id := range s.loader.KnownIDs(imageID) {
		if _, ok := local[id]; ok {
			continue
		}
		if err := s.backend.DeleteAnnotation(ctx, s.datasetID, id); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, models.BatchError{ID: id, Message: err.Error()})
			undeleted = append(undeleted, id)
		}
	}
	return undeleted
}

// stored drops the annotations the backend rejected.
func stored(anns []models.Annotation, failures []models.BatchError) []models.Annotation {
	if len(failures) == 0 {
		return anns
	}
	failed := make(map[string]struct{}, len(failures))
	for _, e := range failures {
		failed[e.ID] = struct{}{}
	}
	out := make([]models.Annotation, 0, len(anns))
	for _, a := range anns {
		if _, ok := failed[a.ID]; !ok {
			out = append(out, a)
		}
	}
	return out
}

func remap(anns []models.Annotation, idMap map[string]string) []models.Annotation {
	out := make([]models.Annotation, len(anns))
	for i, a := range anns {
		if newID, ok := idMap[a.ID]; ok {
			a.ID = newID
		}
		out[i] = a
	}
	return out
}
