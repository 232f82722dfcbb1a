package handlers

import (
	"net/http"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

func (h *Handler) HandleListAnnotations(w http.ResponseWriter, r *http.Request) {
	anns, err := h.store.Annotations(r.PathValue("id"), r.URL.Query().Get("imageId"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if anns == nil {
		anns = []models.Annotation{}
	}
	h.writeJSON(w, models.AnnotationList{Annotations: anns, Total: len(anns)})
}

func (h *Handler) HandleCreateAnnotation(w http.ResponseWriter, r *http.Request) {
	var ann models.Annotation
	if !h.decodeJSON(w, r, &ann) {
		return
	}
	created, err := h.store.CreateAnnotation(r.PathValue("id"), ann, userFromRequest(r, ann.CreatedBy))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSONStatus(w, http.StatusCreated, created)
}

func (h *Handler) HandleUpdateAnnotation(w http.ResponseWriter, r *http.Request) {
	var ann models.Annotation
	if !h.decodeJSON(w, r, &ann) {
		return
	}
	ann.ID = r.PathValue("annId")
	updated, err := h.store.UpdateAnnotation(r.PathValue("id"), ann, userFromRequest(r, ann.UpdatedBy))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, updated)
}

func (h *Handler) HandleDeleteAnnotation(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteAnnotation(r.PathValue("id"), r.PathValue("annId")); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleSaveBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Annotations []models.Annotation `json:"annotations"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}
	result, err := h.store.SaveBatch(r.PathValue("id"), req.Annotations, userFromRequest(r, ""))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, result)
}

type stateRequest struct {
	IDs    []string           `json:"ids"`
	State  models.ReviewState `json:"state"`
	UserID string             `json:"userId"`
}

func (h *Handler) HandleSetState(w http.ResponseWriter, r *http.Request) {
	var req stateRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	ann, err := h.store.SetState(r.PathValue("id"), r.PathValue("annId"), req.State, userFromRequest(r, req.UserID))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, ann)
}

func (h *Handler) HandleBulkState(w http.ResponseWriter, r *http.Request) {
	var req stateRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		h.writeError(w, "ids is required", http.StatusBadRequest)
		return
	}
	result, err := h.store.BulkSetState(r.PathValue("id"), req.IDs, req.State, userFromRequest(r, req.UserID))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, result)
}
