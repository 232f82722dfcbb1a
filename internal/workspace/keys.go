package workspace

import (
	"context"
	"strings"
)

// Key is a key press. Name follows the DOM key names: "d", "Escape",
// "Delete", "ArrowLeft", "1" and so on.
type Key struct {
	Name  string
	Ctrl  bool
	Meta  bool
	Shift bool
}

// ParseKey reads shortcuts written like "ctrl+shift+z" or "cmd+s".
func ParseKey(s string) Key {
	var k Key
	parts := strings.Split(s, "+")
	for i, p := range parts {
		if i == len(parts)-1 {
			k.Name = keyName(p)
			break
		}
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "ctrl", "control":
			k.Ctrl = true
		case "cmd", "meta":
			k.Meta = true
		case "shift":
			k.Shift = true
		}
	}
	return k
}

func keyName(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "esc", "escape":
		return "Escape"
	case "del", "delete":
		return "Delete"
	case "backspace":
		return "Backspace"
	case "left", "arrowleft":
		return "ArrowLeft"
	case "right", "arrowright":
		return "ArrowRight"
	}
	return s
}

// HandleKey runs the shortcut bound to k and reports whether one matched.
//
//	D                 drawing mode (needs a selected category)
//	Esc               cancel drawing, otherwise clear selection
//	Delete            delete the selection set or the focused annotation
//	Ctrl+Z            undo
//	Ctrl+Shift+Z      redo
//	Ctrl/Cmd+S        save (only with unsaved changes)
//	1-9               select the Nth category
//	ArrowLeft/Right   previous / next image
func (w *Workspace) HandleKey(ctx context.Context, k Key) bool {
	if !w.ready() {
		return false
	}
	mod := k.Ctrl || k.Meta
	name := strings.ToLower(k.Name)

	switch {
	case mod && name == "z" && k.Shift:
		return w.Redo()
	case mod && name == "z":
		return w.Undo()
	case mod && name == "s":
		if !w.store.HasUnsavedChanges() {
			return false
		}
		_, err := w.Save(ctx)
		return err == nil
	case mod:
		return false
	}

	switch name {
	case "d":
		return w.StartDrawing()
	case "escape":
		if w.store.IsDrawing() {
			w.StopDrawing()
			return true
		}
		w.ClearSelection()
		return true
	case "delete", "backspace":
		return w.DeleteSelected() > 0
	case "arrowleft":
		return w.Previous()
	case "arrowright":
		return w.Next()
	}

	if len(name) == 1 && name[0] >= '1' && name[0] <= '9' {
		return w.SelectCategoryByIndex(int(name[0] - '1'))
	}
	return false
}
