package handlers

import (
	"log/slog"
	"net/http"
)

// Routes returns the server mux with every endpoint registered.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	if h.imageDir != "" {
		mux.HandleFunc("GET /images/{path...}", h.HandleImage)
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /dataset/{id}/unlabeled-images", h.HandleUnlabeledImages)

	api.HandleFunc("GET /dataset/{id}/categories", h.HandleListCategories)
	api.HandleFunc("POST /dataset/{id}/categories", h.HandleCreateCategory)
	api.HandleFunc("PUT /dataset/{id}/categories/reorder", h.HandleReorderCategories)
	api.HandleFunc("PUT /dataset/{id}/categories/{catId}", h.HandleUpdateCategory)
	api.HandleFunc("DELETE /dataset/{id}/categories/{catId}", h.HandleDeleteCategory)

	api.HandleFunc("GET /dataset/{id}/annotations", h.HandleListAnnotations)
	api.HandleFunc("POST /dataset/{id}/annotations", h.HandleCreateAnnotation)
	api.HandleFunc("POST /dataset/{id}/annotations/batch", h.HandleSaveBatch)
	api.HandleFunc("PUT /dataset/{id}/annotations/bulk-state", h.HandleBulkState)
	api.HandleFunc("PUT /dataset/{id}/annotations/{annId}", h.HandleUpdateAnnotation)
	api.HandleFunc("DELETE /dataset/{id}/annotations/{annId}", h.HandleDeleteAnnotation)
	api.HandleFunc("PUT /dataset/{id}/annotations/{annId}/state", h.HandleSetState)

	mux.Handle("/dataset/", h.requireAuth(api))
	return logRequests(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("Handled request", "method", r.Method, "path", r.URL.Path, "status", rec.status)
	})
}
