// Package storage is the in-memory dataset backend behind the reference
// server: images, categories and annotations per dataset, with batch upserts
// and review-state transitions.
package storage

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

var (
	ErrDatasetNotFound   = errors.New("dataset not found")
	ErrNotFound          = errors.New("not found")
	ErrInvalid           = errors.New("invalid request")
	ErrInvalidTransition = errors.New("invalid review state transition")
)

// Seed is the YAML layout of a seed file.
type Seed struct {
	Datasets []DatasetSeed `yaml:"datasets"`
}

// DatasetSeed is one dataset of a seed file.
type DatasetSeed struct {
	ID          string              `yaml:"id"`
	Images      []models.Image      `yaml:"images"`
	Categories  []models.Category   `yaml:"categories"`
	Annotations []models.Annotation `yaml:"annotations"`
}

type dataset struct {
	images      []models.Image
	categories  []models.Category
	annotations []models.Annotation
}

// Option configures a DatasetStore.
type Option func(*DatasetStore)

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(s *DatasetStore) { s.now = fn }
}

// WithIDGenerator replaces the uuid generator used for new records.
func WithIDGenerator(fn func() string) Option {
	return func(s *DatasetStore) { s.newID = fn }
}

type DatasetStore struct {
	datasets map[string]*dataset
	mu       sync.RWMutex

	now   func() time.Time
	newID func() string
}

func New(opts ...Option) *DatasetStore {
	s := &DatasetStore{
		datasets: make(map[string]*dataset),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadSeedFile reads a YAML seed file and adds every dataset in it.
func (s *DatasetStore) LoadSeedFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}
	for _, ds := range seed.Datasets {
		if ds.ID == "" {
			return fmt.Errorf("seed dataset without id: %w", ErrInvalid)
		}
		s.AddDataset(ds)
	}
	return nil
}

// AddDataset creates or replaces a dataset. Categories without an id get one,
// and their order follows the seed order unless set.
func (s *DatasetStore) AddDataset(seed DatasetSeed) {
	ds := &dataset{
		images:      append([]models.Image(nil), seed.Images...),
		categories:  append([]models.Category(nil), seed.Categories...),
		annotations: append([]models.Annotation(nil), seed.Annotations...),
	}
	for i := range ds.categories {
		if ds.categories[i].ID == "" {
			ds.categories[i].ID = s.newID()
		}
		if ds.categories[i].Order == 0 {
			ds.categories[i].Order = i
		}
	}
	sortByOrder(ds.categories)
	for i := range ds.annotations {
		if ds.annotations[i].ID == "" {
			ds.annotations[i].ID = s.newID()
		}
		if ds.annotations[i].State == "" {
			ds.annotations[i].State = models.StateDraft
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[seed.ID] = ds
}

// DatasetIDs returns the ids of every dataset, sorted.
func (s *DatasetStore) DatasetIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := lo.Keys(s.datasets)
	sort.Strings(ids)
	return ids
}

func (s *DatasetStore) get(datasetID string) (*dataset, error) {
	ds, ok := s.datasets[datasetID]
	if !ok {
		return nil, fmt.Errorf("dataset %s: %w", datasetID, ErrDatasetNotFound)
	}
	return ds, nil
}

// Images returns every image of the dataset.
func (s *DatasetStore) Images(datasetID string) ([]models.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, err := s.get(datasetID)
	if err != nil {
		return nil, err
	}
	return append([]models.Image(nil), ds.images...), nil
}

// UnlabeledImages pages through images that still need work: an image is
// labeled once it has annotations and all of them are approved. Pages start
// at 1.
func (s *DatasetStore) UnlabeledImages(datasetID string, page, limit int) (models.ImagePage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, err := s.get(datasetID)
	if err != nil {
		return models.ImagePage{}, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	pending := lo.Filter(ds.images, func(img models.Image, _ int) bool {
		return !ds.labeled(img.ID)
	})
	total := len(pending)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)
	return models.ImagePage{
		Images:     append([]models.Image{}, pending[start:end]...),
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

func (ds *dataset) labeled(imageID string) bool {
	anns := lo.Filter(ds.annotations, func(a models.Annotation, _ int) bool {
		return a.ImageID == imageID
	})
	return len(anns) > 0 && lo.EveryBy(anns, func(a models.Annotation) bool {
		return a.State == models.StateApproved
	})
}

func (ds *dataset) hasImage(imageID string) bool {
	return lo.ContainsBy(ds.images, func(img models.Image) bool { return img.ID == imageID })
}

func (ds *dataset) categoryIndex(id string) int {
	_, idx, ok := lo.FindIndexOf(ds.categories, func(c models.Category) bool { return c.ID == id })
	if !ok {
		return -1
	}
	return idx
}

func (ds *dataset) annotationIndex(id string) int {
	_, idx, ok := lo.FindIndexOf(ds.annotations, func(a models.Annotation) bool { return a.ID == id })
	if !ok {
		return -1
	}
	return idx
}

func sortByOrder(cats []models.Category) {
	sort.SliceStable(cats, func(i, j int) bool { return cats[i].Order < cats[j].Order })
}
