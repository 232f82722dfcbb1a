package workspace

import (
	"context"
	"fmt"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

// Categories returns the dataset categories in display order.
func (w *Workspace) Categories() []models.Category {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]models.Category(nil), w.categories...)
}

// Category looks a category up by id.
func (w *Workspace) Category(id string) (models.Category, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, c := range w.categories {
		if c.ID == id {
			return c, true
		}
	}
	return models.Category{}, false
}

func (w *Workspace) setCategories(cats []models.Category) {
	sorted := sortCategories(cats)
	w.mu.Lock()
	w.categories = sorted
	w.mu.Unlock()
}

// SelectCategory makes id the category new boxes are drawn with.
func (w *Workspace) SelectCategory(id string) bool {
	if _, ok := w.Category(id); !ok {
		return false
	}
	w.store.SetSelectedCategory(id)
	return true
}

// SelectCategoryByIndex selects the category at a zero-based display position.
func (w *Workspace) SelectCategoryByIndex(index int) bool {
	cats := w.Categories()
	if index < 0 || index >= len(cats) {
		return false
	}
	w.store.SetSelectedCategory(cats[index].ID)
	return true
}

// CreateCategory adds a category on the backend. The first category created
// in an empty dataset becomes the selected one.
func (w *Workspace) CreateCategory(ctx context.Context, cat models.Category) (models.Category, error) {
	if cat.Name == "" {
		return models.Category{}, fmt.Errorf("category name is required")
	}
	if cat.Order == 0 {
		cat.Order = len(w.Categories())
	}
	created, err := w.backend.CreateCategory(ctx, w.cfg.DatasetID, cat)
	if err != nil {
		w.notifier.Warn("Failed to create category", "name", cat.Name, "error", err)
		return models.Category{}, err
	}
	w.setCategories(append(w.Categories(), created))
	if w.store.SelectedCategoryID() == "" {
		w.store.SetSelectedCategory(created.ID)
	}
	return created, nil
}

// UpdateCategory changes a category on the backend and refreshes the cached
// category name on its annotations.
func (w *Workspace) UpdateCategory(ctx context.Context, cat models.Category) (models.Category, error) {
	if _, ok := w.Category(cat.ID); !ok {
		return models.Category{}, fmt.Errorf("unknown category %s", cat.ID)
	}
	updated, err := w.backend.UpdateCategory(ctx, w.cfg.DatasetID, cat)
	if err != nil {
		w.notifier.Warn("Failed to update category", "id", cat.ID, "error", err)
		return models.Category{}, err
	}
	cats := w.Categories()
	for i := range cats {
		if cats[i].ID == updated.ID {
			cats[i] = updated
		}
	}
	w.setCategories(cats)
	w.store.RenameCategory(updated.ID, updated.Name)
	return updated, nil
}

// DeleteCategory removes a category on the backend. If it was selected the
// first remaining category is selected instead.
func (w *Workspace) DeleteCategory(ctx context.Context, id string) error {
	if err := w.backend.DeleteCategory(ctx, w.cfg.DatasetID, id); err != nil {
		w.notifier.Warn("Failed to delete category", "id", id, "error", err)
		return err
	}
	var kept []models.Category
	for _, c := range w.Categories() {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	w.setCategories(kept)

	if w.store.SelectedCategoryID() == id {
		next := ""
		if len(kept) > 0 {
			next = kept[0].ID
		}
		w.store.SetSelectedCategory(next)
		if next == "" {
			w.StopDrawing()
		}
	}
	return nil
}

// ReorderCategories sets the display order to ids.
func (w *Workspace) ReorderCategories(ctx context.Context, ids []string) error {
	cats, err := w.backend.ReorderCategories(ctx, w.cfg.DatasetID, ids)
	if err != nil {
		w.notifier.Warn("Failed to reorder categories", "error", err)
		return err
	}
	w.setCategories(cats)
	return nil
}
