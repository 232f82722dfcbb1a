package models

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     ReviewState
		to       ReviewState
		expected bool
	}{
		{name: "draft to reviewed", from: StateDraft, to: StateReviewed, expected: true},
		{name: "empty counts as draft", from: "", to: StateReviewed, expected: true},
		{name: "reviewed to approved", from: StateReviewed, to: StateApproved, expected: true},
		{name: "reviewed to rejected", from: StateReviewed, to: StateRejected, expected: true},
		{name: "rejected back to draft", from: StateRejected, to: StateDraft, expected: true},
		{name: "same state is idempotent", from: StateApproved, to: StateApproved, expected: true},
		{name: "draft cannot skip to approved", from: StateDraft, to: StateApproved, expected: false},
		{name: "approved cannot be rejected", from: StateApproved, to: StateRejected, expected: false},
		{name: "unknown target", from: StateDraft, to: "archived", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestParseReviewState(t *testing.T) {
	if s, err := ParseReviewState("approved"); err != nil || s != StateApproved {
		t.Errorf("Expected approved, got %q (err=%v)", s, err)
	}
	if _, err := ParseReviewState("done"); err == nil {
		t.Error("Expected error for unknown state")
	}
}

func TestBBoxInBounds(t *testing.T) {
	tests := []struct {
		name     string
		box      BBox
		expected bool
	}{
		{name: "inside", box: BBox{0.1, 0.1, 0.5, 0.5}, expected: true},
		{name: "touching edges", box: BBox{0, 0, 1, 1}, expected: true},
		{name: "overflows right", box: BBox{0.6, 0.1, 0.5, 0.2}, expected: false},
		{name: "negative origin", box: BBox{-0.1, 0.1, 0.2, 0.2}, expected: false},
		{name: "zero width", box: BBox{0.1, 0.1, 0, 0.2}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.box.InBounds(); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestApplyState(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var a Annotation
	a.ApplyState(StateReviewed, "rev", at)
	if a.State != StateReviewed || a.ReviewedBy != "rev" || !a.ReviewedAt.Equal(at) {
		t.Errorf("Expected reviewer stamp, got %+v", a)
	}
	a.ApplyState(StateApproved, "boss", at.Add(time.Hour))
	if a.ApprovedBy != "boss" || a.ReviewedBy != "rev" || a.UpdatedBy != "boss" {
		t.Errorf("Expected approver stamp keeping reviewer, got %+v", a)
	}
}
