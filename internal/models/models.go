package models

import (
	"fmt"
	"time"
)

// Image represents an image in a dataset that can be annotated
type Image struct {
	ID           string `json:"id" yaml:"id"`
	Filename     string `json:"filename" yaml:"filename"`
	URL          string `json:"url" yaml:"url"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty" yaml:"thumbnailUrl,omitempty"`
	Folder       string `json:"folder,omitempty" yaml:"folder,omitempty"`
	Size         int64  `json:"size,omitempty" yaml:"size,omitempty"`
}

// Category is an object class that annotations point at
type Category struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Color       string `json:"color" yaml:"color"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Order       int    `json:"order" yaml:"order"`
}

// BBox is a normalized bounding box: x, y, width, height in the 0..1 range,
// origin at the top-left corner of the image.
type BBox [4]float64

func (b BBox) X() float64      { return b[0] }
func (b BBox) Y() float64      { return b[1] }
func (b BBox) Width() float64  { return b[2] }
func (b BBox) Height() float64 { return b[3] }

// InBounds reports whether the box has positive size and lies inside the unit square.
func (b BBox) InBounds() bool {
	const eps = 1e-9
	return b[0] >= -eps && b[1] >= -eps &&
		b[2] > 0 && b[3] > 0 &&
		b[0]+b[2] <= 1+eps && b[1]+b[3] <= 1+eps
}

// ReviewState is the review workflow tag of an annotation
type ReviewState string

const (
	StateDraft    ReviewState = "draft"
	StateReviewed ReviewState = "reviewed"
	StateApproved ReviewState = "approved"
	StateRejected ReviewState = "rejected"
)

var reviewTransitions = map[ReviewState][]ReviewState{
	StateDraft:    {StateReviewed},
	StateReviewed: {StateApproved, StateRejected},
	StateApproved: {StateDraft},
	StateRejected: {StateDraft},
}

// Valid reports whether s is one of the known review states
func (s ReviewState) Valid() bool {
	_, ok := reviewTransitions[s]
	return ok
}

// CanTransition reports whether an annotation in state s may move to next.
// An empty state is treated as draft; same-state transitions are allowed.
func (s ReviewState) CanTransition(next ReviewState) bool {
	if s == "" {
		s = StateDraft
	}
	if !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	for _, allowed := range reviewTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseReviewState converts user input into a ReviewState
func ParseReviewState(s string) (ReviewState, error) {
	state := ReviewState(s)
	if !state.Valid() {
		return "", fmt.Errorf("invalid review state %q (must be draft, reviewed, approved or rejected)", s)
	}
	return state, nil
}

// Annotation is a single bounding box on an image
type Annotation struct {
	ID           string      `json:"id" yaml:"id"`
	ImageID      string      `json:"imageId" yaml:"imageId"`
	BBox         BBox        `json:"bbox" yaml:"bbox,flow"`
	CategoryID   string      `json:"categoryId" yaml:"categoryId"`
	CategoryName string      `json:"categoryName" yaml:"categoryName"`
	State        ReviewState `json:"state,omitempty" yaml:"state,omitempty"`
	CreatedAt    time.Time   `json:"createdAt,omitzero" yaml:"createdAt,omitempty"`
	UpdatedAt    time.Time   `json:"updatedAt,omitzero" yaml:"updatedAt,omitempty"`
	CreatedBy    string      `json:"createdBy,omitempty" yaml:"createdBy,omitempty"`
	UpdatedBy    string      `json:"updatedBy,omitempty" yaml:"updatedBy,omitempty"`
	ReviewedBy   string      `json:"reviewedBy,omitempty" yaml:"reviewedBy,omitempty"`
	ReviewedAt   time.Time   `json:"reviewedAt,omitzero" yaml:"reviewedAt,omitempty"`
	ApprovedBy   string      `json:"approvedBy,omitempty" yaml:"approvedBy,omitempty"`
	ApprovedAt   time.Time   `json:"approvedAt,omitzero" yaml:"approvedAt,omitempty"`
}

// ImagePage is one page of the unlabeled-images listing
type ImagePage struct {
	Images     []Image `json:"images"`
	Total      int     `json:"total"`
	Page       int     `json:"page"`
	Limit      int     `json:"limit"`
	TotalPages int     `json:"totalPages"`
}

// AnnotationList is the response of the per-image annotation listing
type AnnotationList struct {
	Annotations []Annotation `json:"annotations"`
	Total       int          `json:"total"`
}

// BatchError describes one failed item of a batch save
type BatchError struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// BatchResult is the outcome of a batch save. IDs maps the id the client sent
// to the id the server stored; Annotations holds the stored copies.
type BatchResult struct {
	Saved       int               `json:"saved"`
	Failed      int               `json:"failed"`
	Errors      []BatchError      `json:"errors,omitempty"`
	IDs         map[string]string `json:"ids,omitempty"`
	Annotations []Annotation      `json:"annotations,omitempty"`
}

// BulkStateResult is the outcome of a bulk review-state change. Annotations
// holds the stored copies of the updated ones.
type BulkStateResult struct {
	Updated     int          `json:"updated"`
	Failed      int          `json:"failed"`
	Errors      []BatchError `json:"errors,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// ApplyState moves the annotation to state and records who did it. Reviewed
// and rejected stamp the reviewer, approved stamps the approver.
func (a *Annotation) ApplyState(state ReviewState, userID string, at time.Time) {
	a.State = state
	a.UpdatedAt = at
	if userID != "" {
		a.UpdatedBy = userID
	}
	switch state {
	case StateReviewed, StateRejected:
		a.ReviewedBy = userID
		a.ReviewedAt = at
	case StateApproved:
		a.ApprovedBy = userID
		a.ApprovedAt = at
	}
}
