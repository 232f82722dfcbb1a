package storage

import (
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

// Annotations returns the annotations of one image, or of the whole dataset
// when imageID is empty.
func (s *DatasetStore) Annotations(datasetID, imageID string) ([]models.Annotation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, err := s.get(datasetID)
	if err != nil {
		return nil, err
	}
	if imageID == "" {
		return append([]models.Annotation{}, ds.annotations...), nil
	}
	return lo.Filter(ds.annotations, func(a models.Annotation, _ int) bool {
		return a.ImageID == imageID
	}), nil
}

// CreateAnnotation stores a new annotation under a server id.
func (s *DatasetStore) CreateAnnotation(datasetID string, ann models.Annotation, userID string) (models.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, err := s.get(datasetID)
	if err != nil {
		return models.Annotation{}, err
	}
	ann.ID = ""
	return s.upsertLocked(ds, ann, userID)
}

// UpdateAnnotation replaces an existing annotation's box, category and state.
func (s *DatasetStore) UpdateAnnotation(datasetID string, ann models.Annotation, userID string) (models.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, err := s.get(datasetID)
	if err != nil {
		return models.Annotation{}, err
	}
	if ds.annotationIndex(ann.ID) < 0 {
		return models.Annotation{}, fmt.Errorf("annotation %s: %w", ann.ID, ErrNotFound)
	}
	return s.upsertLocked(ds, ann, userID)
}

// DeleteAnnotation removes an annotation.
func (s *DatasetStore) DeleteAnnotation(datasetID, annotationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, err := s.get(datasetID)
	if err != nil {
		return err
	}
	idx := ds.annotationIndex(annotationID)
	if idx < 0 {
		return fmt.Errorf("annotation %s: %w", annotationID, ErrNotFound)
	}
	ds.annotations = append(ds.annotations[:idx], ds.annotations[idx+1:]...)
	return nil
}

// SaveBatch upserts every annotation independently. Items with an unknown id
// are created and reported in IDs; invalid items are counted as failed.
func (s *DatasetStore) SaveBatch(datasetID string, anns []models.Annotation, userID string) (models.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, err := s.get(datasetID)
	if err != nil {
		return models.BatchResult{}, err
	}

	result := models.BatchResult{IDs: make(map[string]string)}
	for _, ann := range anns {
		clientID := ann.ID
		if ds.annotationIndex(ann.ID) < 0 {
			ann.ID = ""
		}
		stored, err := s.upsertLocked(ds, ann, userID)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, models.BatchError{ID: clientID, Message: err.Error()})
			continue
		}
		result.Saved++
		result.Annotations = append(result.Annotations, stored)
		if clientID != stored.ID {
			result.IDs[clientID] = stored.ID
		}
	}
	return result, nil
}

// upsertLocked validates ann and stores it. An empty id creates a record.
func (s *DatasetStore) upsertLocked(ds *dataset, ann models.Annotation, userID string) (models.Annotation, error) {
	if !ds.hasImage(ann.ImageID) {
		return models.Annotation{}, fmt.Errorf("image %q does not exist: %w", ann.ImageID, ErrInvalid)
	}
	if !ann.BBox.InBounds() {
		return models.Annotation{}, fmt.Errorf("bbox %v is outside the image: %w", ann.BBox, ErrInvalid)
	}
	catIdx := ds.categoryIndex(ann.CategoryID)
	if catIdx < 0 {
		return models.Annotation{}, fmt.Errorf("category %q does not exist: %w", ann.CategoryID, ErrInvalid)
	}
	ann.CategoryName = ds.categories[catIdx].Name
	if ann.State == "" {
		ann.State = models.StateDraft
	}
	if !ann.State.Valid() {
		return models.Annotation{}, fmt.Errorf("state %q: %w", ann.State, ErrInvalid)
	}

	now := s.now()
	ann.UpdatedAt = now
	if userID != "" {
		ann.UpdatedBy = userID
	}

	idx := ds.annotationIndex(ann.ID)
	if idx < 0 {
		ann.ID = s.newID()
		if ann.CreatedAt.IsZero() {
			ann.CreatedAt = now
		}
		if ann.CreatedBy == "" {
			ann.CreatedBy = userID
		}
		ds.annotations = append(ds.annotations, ann)
		return ann, nil
	}

	prev := ds.annotations[idx]
	ann.CreatedAt = prev.CreatedAt
	ann.CreatedBy = prev.CreatedBy
	ann.ReviewedBy, ann.ReviewedAt = prev.ReviewedBy, prev.ReviewedAt
	ann.ApprovedBy, ann.ApprovedAt = prev.ApprovedBy, prev.ApprovedAt
	ds.annotations[idx] = ann
	return ann, nil
}

// SetState moves one annotation along the review workflow.
func (s *DatasetStore) SetState(datasetID, annotationID string, state models.ReviewState, userID string) (models.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, err := s.get(datasetID)
	if err != nil {
		return models.Annotation{}, err
	}
	return s.setStateLocked(ds, annotationID, state, userID)
}

func (s *DatasetStore) setStateLocked(ds *dataset, annotationID string, state models.ReviewState, userID string) (models.Annotation, error) {
	if !state.Valid() {
		return models.Annotation{}, fmt.Errorf("state %q: %w", state, ErrInvalid)
	}
	idx := ds.annotationIndex(annotationID)
	if idx < 0 {
		return models.Annotation{}, fmt.Errorf("annotation %s: %w", annotationID, ErrNotFound)
	}
	ann := &ds.annotations[idx]
	if !ann.State.CanTransition(state) {
		return models.Annotation{}, fmt.Errorf("%s to %s: %w", ann.State, state, ErrInvalidTransition)
	}
	ann.ApplyState(state, userID, s.now())
	return *ann, nil
}

// BulkSetState applies SetState to each id and counts the outcome. Only an
// invalid target state fails the whole call.
func (s *DatasetStore) BulkSetState(datasetID string, ids []string, state models.ReviewState, userID string) (models.BulkStateResult, error) {
	if !state.Valid() {
		return models.BulkStateResult{}, fmt.Errorf("state %q: %w", state, ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ds, err := s.get(datasetID)
	if err != nil {
		return models.BulkStateResult{}, err
	}

	var result models.BulkStateResult
	for _, id := range lo.Uniq(ids) {
		ann, err := s.setStateLocked(ds, id, state, userID)
		if err != nil {
			result.Failed++
			msg := err.Error()
			if errors.Is(err, ErrNotFound) {
				msg = "annotation not found"
			}
			result.Errors = append(result.Errors, models.BatchError{ID: id, Message: msg})
			continue
		}
		result.Updated++
		result.Annotations = append(result.Annotations, ann)
	}
	return result, nil
}
