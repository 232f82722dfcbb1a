package handlers

import (
	"net/http"
	"strconv"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

func (h *Handler) HandleUnlabeledImages(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		h.writeError(w, "Invalid page: "+err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		h.writeError(w, "Invalid limit: "+err.Error(), http.StatusBadRequest)
		return
	}
	result, err := h.store.UnlabeledImages(r.PathValue("id"), page, limit)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, result)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

type categoryList struct {
	Categories []models.Category `json:"categories"`
}

func (h *Handler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.store.Categories(r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, categoryList{Categories: cats})
}

func (h *Handler) HandleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var cat models.Category
	if !h.decodeJSON(w, r, &cat) {
		return
	}
	created, err := h.store.CreateCategory(r.PathValue("id"), cat)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSONStatus(w, http.StatusCreated, created)
}

func (h *Handler) HandleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var cat models.Category
	if !h.decodeJSON(w, r, &cat) {
		return
	}
	cat.ID = r.PathValue("catId")
	updated, err := h.store.UpdateCategory(r.PathValue("id"), cat)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, updated)
}

func (h *Handler) HandleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteCategory(r.PathValue("id"), r.PathValue("catId")); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleReorderCategories(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}
	cats, err := h.store.ReorderCategories(r.PathValue("id"), req.IDs)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, categoryList{Categories: cats})
}
