package selection

import (
	"reflect"
	"testing"
)

func TestToggle(t *testing.T) {
	tests := []struct {
		name     string
		initial  []string
		id       string
		additive bool
		expected []string
	}{
		{name: "additive adds", initial: []string{"a"}, id: "b", additive: true, expected: []string{"a", "b"}},
		{name: "additive removes", initial: []string{"a", "b"}, id: "a", additive: true, expected: []string{"b"}},
		{name: "plain replaces", initial: []string{"a", "b"}, id: "c", additive: false, expected: []string{"c"}},
		{name: "plain on selected among many narrows", initial: []string{"a", "b"}, id: "a", additive: false, expected: []string{"a"}},
		{name: "plain on sole selection clears", initial: []string{"a"}, id: "a", additive: false, expected: []string{}},
		{name: "empty id ignored", initial: []string{"a"}, id: "", additive: false, expected: []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			s.SelectAll(tt.initial)
			s.Toggle(tt.id, tt.additive)
			if got := s.IDs(); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestSelectAndDeselect(t *testing.T) {
	s := New()
	s.Select("b", false)
	s.Select("a", true)
	if got := s.IDs(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Expected [a b], got %v", got)
	}
	s.Select("c", false)
	if s.Len() != 1 || !s.Contains("c") {
		t.Errorf("Expected only c selected, got %v", s.IDs())
	}
	s.Deselect("c")
	if s.Len() != 0 {
		t.Errorf("Expected empty selection, got %v", s.IDs())
	}
}

func TestRenameAndRetain(t *testing.T) {
	s := New()
	s.SelectAll([]string{"tmp-1", "keep", "gone"})
	s.Rename(map[string]string{"tmp-1": "srv-1", "unrelated": "x"})
	s.Retain([]string{"srv-1", "keep"})
	if got := s.IDs(); !reflect.DeepEqual(got, []string{"keep", "srv-1"}) {
		t.Errorf("Expected [keep srv-1], got %v", got)
	}
	s.Clear()
	if s.Contains("keep") {
		t.Error("Expected clear to empty the selection")
	}
}
