// Package selection tracks the set of annotation ids picked for bulk
// operations. It is separate from the single focused annotation kept by the
// session store.
package selection

import (
	"sort"
	"sync"
)

// Set is a concurrency-safe set of annotation ids.
type Set struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// New returns an empty selection.
func New() *Set {
	return &Set{ids: make(map[string]struct{})}
}

// Select adds id to the selection, or replaces the selection with {id} when
// additive is false.
func (s *Set) Select(id string, additive bool) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !additive {
		s.ids = make(map[string]struct{})
	}
	s.ids[id] = struct{}{}
}

// Toggle flips id. Without additive, a selection of exactly {id} is cleared
// and anything else becomes {id}.
func (s *Set) Toggle(id string, additive bool) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, present := s.ids[id]
	if additive {
		if present {
			delete(s.ids, id)
		} else {
			s.ids[id] = struct{}{}
		}
		return
	}
	if present && len(s.ids) == 1 {
		s.ids = make(map[string]struct{})
		return
	}
	s.ids = map[string]struct{}{id: {}}
}

// Deselect removes id.
func (s *Set) Deselect(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

// SelectAll replaces the selection with ids.
func (s *Set) SelectAll(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			s.ids[id] = struct{}{}
		}
	}
}

// Clear empties the selection.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[string]struct{})
}

// Contains reports whether id is selected.
func (s *Set) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of selected ids.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// IDs returns the selected ids in sorted order.
func (s *Set) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Rename replaces ids according to idMap, used after a save assigns
// server ids to local annotations.
func (s *Set) Rename(idMap map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for oldID, newID := range idMap {
		if _, ok := s.ids[oldID]; ok {
			delete(s.ids, oldID)
			s.ids[newID] = struct{}{}
		}
	}
}

// Retain drops every selected id not present in keep.
func (s *Set) Retain(keep []string) {
	allowed := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		allowed[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.ids {
		if _, ok := allowed[id]; !ok {
			delete(s.ids, id)
		}
	}
}
