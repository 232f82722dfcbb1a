package workspace

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/lehigh-university-libraries/annotator/internal/models"
	"github.com/lehigh-university-libraries/annotator/internal/remote"
)

// ErrNotStored is returned for review changes on annotations the backend
// does not have yet. Save first.
var ErrNotStored = errors.New("annotation has not been saved")

// SetReviewState moves one annotation through the review workflow on the
// backend, acting as the configured user. The result is adopted locally
// without creating an undo step.
func (w *Workspace) SetReviewState(ctx context.Context, id string, state models.ReviewState) error {
	if !w.ready() {
		return ErrNotReady
	}
	ann, ok := w.store.Annotation(id)
	if !ok {
		return fmt.Errorf("unknown annotation %s", id)
	}
	if !w.stored(id) {
		return fmt.Errorf("%w: %s", ErrNotStored, id)
	}
	if !ann.State.CanTransition(state) {
		return fmt.Errorf("%w: cannot move from %s to %s", remote.ErrConflict, ann.State, state)
	}

	updated, err := w.backend.SetState(ctx, w.cfg.DatasetID, id, state, w.cfg.UserID)
	if err != nil {
		w.notifier.Warn("Failed to change review state", "id", id, "state", state, "error", err)
		return err
	}
	w.store.ApplyRemote(updated)
	return nil
}

// BulkSetReviewState applies state to ids, or to the selection set when ids
// is empty. Ids the backend does not have yet are reported as failures
// without being sent. The stored copies of the updated annotations are
// adopted locally so their timestamps match the backend.
func (w *Workspace) BulkSetReviewState(ctx context.Context, ids []string, state models.ReviewState) (models.BulkStateResult, error) {
	if !w.ready() {
		return models.BulkStateResult{}, ErrNotReady
	}
	if len(ids) == 0 {
		ids = w.selection.IDs()
	}
	if len(ids) == 0 {
		return models.BulkStateResult{}, nil
	}

	send, unsaved := lo.FilterReject(ids, func(id string, _ int) bool { return w.stored(id) })
	var res models.BulkStateResult
	if len(send) > 0 {
		var err error
		res, err = w.backend.BulkSetState(ctx, w.cfg.DatasetID, send, state, w.cfg.UserID)
		if err != nil {
			w.notifier.Warn("Failed to change review state", "count", len(send), "state", state, "error", err)
			return models.BulkStateResult{}, err
		}
	}
	for _, id := range unsaved {
		res.Failed++
		res.Errors = append(res.Errors, models.BatchError{ID: id, Message: ErrNotStored.Error()})
	}

	updated := res.Annotations
	if len(updated) == 0 && res.Updated > 0 {
		updated = w.refetch(ctx, send)
	}
	w.store.ApplyRemote(updated...)

	if res.Failed > 0 {
		w.notifier.Warn("Some review changes were rejected", "updated", res.Updated, "failed", res.Failed)
	}
	return res, nil
}

// stored reports whether the backend holds annotation id of the current image.
func (w *Workspace) stored(id string) bool {
	return w.loader.Known(w.store.CurrentImageID(), id)
}

// refetch reads back ids from the backend for a server that does not echo
// the updated annotations.
func (w *Workspace) refetch(ctx context.Context, ids []string) []models.Annotation {
	imageID := w.store.CurrentImageID()
	remoteAnns, err := w.backend.ListAnnotations(ctx, w.cfg.DatasetID, imageID)
	if err != nil {
		w.notifier.Warn("Failed to read back review changes", "image", imageID, "error", err)
		return nil
	}
	return lo.Filter(remoteAnns, func(a models.Annotation, _ int) bool { return lo.Contains(ids, a.ID) })
}
