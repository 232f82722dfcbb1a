package handlers

import (
	"net/http"
	"path/filepath"
	"strings"
)

// HandleImage serves dataset image files from the configured directory.
func (h *Handler) HandleImage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("path")

	// Prevent directory traversal attacks
	if name == "" || strings.Contains(name, "..") {
		http.Error(w, "Invalid file path", http.StatusBadRequest)
		return
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		w.Header().Set("Content-Type", "image/jpeg")
	case ".png":
		w.Header().Set("Content-Type", "image/png")
	case ".gif":
		w.Header().Set("Content-Type", "image/gif")
	default:
		http.Error(w, "Unsupported file type", http.StatusNotFound)
		return
	}

	http.ServeFile(w, r, filepath.Join(h.imageDir, filepath.FromSlash(name)))
}
