// Package handlers serves the dataset REST API over net/http.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/annotator/internal/storage"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 8 << 20

type Handler struct {
	store     *storage.DatasetStore
	jwtSecret []byte
	imageDir  string
}

// Option configures a Handler.
type Option func(*Handler)

// WithJWTSecret turns on bearer-token auth for the dataset routes.
func WithJWTSecret(secret []byte) Option {
	return func(h *Handler) { h.jwtSecret = secret }
}

// WithImageDir serves image files from dir under /images/.
func WithImageDir(dir string) Option {
	return func(h *Handler) { h.imageDir = dir }
}

func New(store *storage.DatasetStore, opts ...Option) *Handler {
	h := &Handler{store: store}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	h.writeJSONStatus(w, http.StatusOK, data)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= http.StatusInternalServerError {
		slog.Error(message)
	} else {
		slog.Debug(message, "code", code)
	}
	http.Error(w, message, code)
}

// writeStoreError maps storage errors to status codes.
func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrDatasetNotFound), errors.Is(err, storage.ErrNotFound):
		h.writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, storage.ErrInvalidTransition):
		h.writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, storage.ErrInvalid):
		h.writeError(w, err.Error(), http.StatusBadRequest)
	default:
		h.writeError(w, "Internal server error: "+err.Error(), http.StatusInternalServerError)
	}
}

// decodeJSON reads the request body into v, writing a 400 on failure.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
