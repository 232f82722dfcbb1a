package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

// Document is the YAML export layout.
type Document struct {
	Dataset    string            `yaml:"dataset"`
	ExportedAt string            `yaml:"exportedAt"`
	Categories []models.Category `yaml:"categories"`
	Summary    []CategoryCount   `yaml:"summary"`
	Images     []ImageEntry      `yaml:"images"`
}

// ImageEntry is one image and its annotations.
type ImageEntry struct {
	models.Image `yaml:",inline"`
	Annotations  []models.Annotation `yaml:"annotations,omitempty"`
}

// BuildDocument groups ds by image.
func BuildDocument(ds Dataset, now time.Time) Document {
	byImage := make(map[string][]models.Annotation)
	for _, a := range ds.Annotations {
		byImage[a.ImageID] = append(byImage[a.ImageID], a)
	}
	doc := Document{
		Dataset:    ds.ID,
		ExportedAt: now.UTC().Format("2006-01-02_15-04-05"),
		Categories: ds.Categories,
		Summary:    Summarize(ds),
		Images:     make([]ImageEntry, 0, len(ds.Images)),
	}
	for _, img := range ds.Images {
		doc.Images = append(doc.Images, ImageEntry{Image: img, Annotations: byImage[img.ID]})
	}
	return doc
}

// WriteYAML writes ds as a Document to path, creating its directory.
func WriteYAML(path string, ds Dataset) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}

	data, err := yaml.Marshal(BuildDocument(ds, time.Now()))
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write YAML file: %w", err)
	}
	slog.Info("Wrote yaml export", "path", path, "images", len(ds.Images), "annotations", len(ds.Annotations))
	return nil
}

// ReadYAML loads a Document written by WriteYAML.
func ReadYAML(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("failed to read YAML file: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to parse YAML file: %w", err)
	}
	return doc, nil
}
