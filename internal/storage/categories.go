package storage

import (
	"fmt"
	"strings"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

// Categories returns the dataset's categories in display order.
func (s *DatasetStore) Categories(datasetID string) ([]models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, err := s.get(datasetID)
	if err != nil {
		return nil, err
	}
	return append([]models.Category{}, ds.categories...), nil
}

// CreateCategory appends a category at the end of the order.
func (s *DatasetStore) CreateCategory(datasetID string, cat models.Category) (models.Category, error) {
	cat.Name = strings.TrimSpace(cat.Name)
	if cat.Name == "" {
		return models.Category{}, fmt.Errorf("category name is required: %w", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ds, err := s.get(datasetID)
	if err != nil {
		return models.Category{}, err
	}
	if cat.ID == "" {
		cat.ID = s.newID()
	} else if ds.categoryIndex(cat.ID) >= 0 {
		return models.Category{}, fmt.Errorf("category %s already exists: %w", cat.ID, ErrInvalid)
	}
	cat.Order = len(ds.categories)
	ds.categories = append(ds.categories, cat)
	return cat, nil
}

// UpdateCategory replaces name, color and description. A rename is carried
// into the category name of existing annotations.
func (s *DatasetStore) UpdateCategory(datasetID string, cat models.Category) (models.Category, error) {
	cat.Name = strings.TrimSpace(cat.Name)
	if cat.Name == "" {
		return models.Category{}, fmt.Errorf("category name is required: %w", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ds, err := s.get(datasetID)
	if err != nil {
		return models.Category{}, err
	}
	idx := ds.categoryIndex(cat.ID)
	if idx < 0 {
		return models.Category{}, fmt.Errorf("category %s: %w", cat.ID, ErrNotFound)
	}
	cat.Order = ds.categories[idx].Order
	ds.categories[idx] = cat
	for i := range ds.annotations {
		if ds.annotations[i].CategoryID == cat.ID {
			ds.annotations[i].CategoryName = cat.Name
		}
	}
	return cat, nil
}

// DeleteCategory removes a category. Annotations pointing at it are kept.
func (s *DatasetStore) DeleteCategory(datasetID, categoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, err := s.get(datasetID)
	if err != nil {
		return err
	}
	idx := ds.categoryIndex(categoryID)
	if idx < 0 {
		return fmt.Errorf("category %s: %w", categoryID, ErrNotFound)
	}
	ds.categories = append(ds.categories[:idx], ds.categories[idx+1:]...)
	for i := range ds.categories {
		ds.categories[i].Order = i
	}
	return nil
}

// ReorderCategories sets the order from ids, which must name every category
// exactly once.
func (s *DatasetStore) ReorderCategories(datasetID string, ids []string) ([]models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, err := s.get(datasetID)
	if err != nil {
		return nil, err
	}
	if len(ids) != len(ds.categories) {
		return nil, fmt.Errorf("reorder needs all %d categories, got %d: %w", len(ds.categories), len(ids), ErrInvalid)
	}

	reordered := make([]models.Category, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for i, id := range ids {
		idx := ds.categoryIndex(id)
		if idx < 0 || seen[id] {
			return nil, fmt.Errorf("unknown or repeated category %q: %w", id, ErrInvalid)
		}
		seen[id] = true
		cat := ds.categories[idx]
		cat.Order = i
		reordered = append(reordered, cat)
	}
	ds.categories = reordered
	return append([]models.Category{}, reordered...), nil
}
