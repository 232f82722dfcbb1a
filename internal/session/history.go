package session

import (
	"github.com/samber/lo"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

// Each history entry is a snapshot of the current image's annotations taken
// after a mutation. Index 0 is the state the image was opened with.

func (s *Store) pushHistoryLocked() {
	snap := s.currentSliceLocked()
	if s.historyIndex < len(s.history)-1 {
		s.history = s.history[:s.historyIndex+1]
	}
	s.history = append(s.history, snap)
	if over := len(s.history) - s.maxHistory; over > 0 {
		s.history = append([][]models.Annotation(nil), s.history[over:]...)
	}
	s.historyIndex = len(s.history) - 1
}

func (s *Store) resetHistoryLocked() {
	if s.currentImageLocked() == nil {
		s.history = nil
		s.historyIndex = -1
		return
	}
	s.history = [][]models.Annotation{s.currentSliceLocked()}
	s.historyIndex = 0
}

// CanUndo reports whether Undo would change anything.
func (s *Store) CanUndo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.historyIndex > 0
}

// CanRedo reports whether Redo would change anything.
func (s *Store) CanRedo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.historyIndex >= 0 && s.historyIndex < len(s.history)-1
}

// Undo restores the previous snapshot of the current image.
func (s *Store) Undo() bool {
	s.mu.Lock()
	if s.historyIndex <= 0 {
		s.mu.Unlock()
		return false
	}
	s.historyIndex--
	s.restoreLocked()
	s.mu.Unlock()
	s.notify()
	return true
}

// Redo re-applies the next snapshot of the current image.
func (s *Store) Redo() bool {
	s.mu.Lock()
	if s.historyIndex < 0 || s.historyIndex >= len(s.history)-1 {
		s.mu.Unlock()
		return false
	}
	s.historyIndex++
	s.restoreLocked()
	s.mu.Unlock()
	s.notify()
	return true
}

func (s *Store) restoreLocked() {
	img := s.currentImageLocked()
	if img == nil {
		return
	}
	snap := append([]models.Annotation(nil), s.history[s.historyIndex]...)
	s.replaceImageLocked(img.ID, snap)
	s.unsaved = true
	if !lo.ContainsBy(snap, func(a models.Annotation) bool { return a.ID == s.selectedAnnotationID }) {
		s.selectedAnnotationID = ""
	}
}
