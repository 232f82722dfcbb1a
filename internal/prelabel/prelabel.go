// Package prelabel asks a vision model for candidate boxes on an image and
// turns its answer into draft annotations for the dataset's categories.
package prelabel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lehigh-university-libraries/annotator/internal/gemini"
	"github.com/lehigh-university-libraries/annotator/internal/geometry"
	"github.com/lehigh-university-libraries/annotator/internal/images"
	"github.com/lehigh-university-libraries/annotator/internal/models"
	"github.com/lehigh-university-libraries/annotator/internal/ollama"
	"github.com/lehigh-university-libraries/annotator/internal/openai"
	"github.com/lehigh-university-libraries/annotator/internal/providers"
)

// Proposal is one box suggested by the model.
type Proposal struct {
	CategoryID   string      `json:"categoryId" yaml:"categoryId"`
	CategoryName string      `json:"categoryName" yaml:"categoryName"`
	BBox         models.BBox `json:"bbox" yaml:"bbox,flow"`
	Confidence   float64     `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// NewProvider returns the provider registered under name.
func NewProvider(name string) (providers.Provider, error) {
	switch name {
	case "gemini":
		return gemini.New(), nil
	case "ollama":
		return ollama.New(), nil
	case "openai":
		return openai.New(), nil
	}
	return nil, providers.ErrUnsupported(name)
}

// ImageSource fetches image bytes.
type ImageSource interface {
	Fetch(ctx context.Context, img models.Image) (*images.Image, error)
}

// Service produces proposals for dataset images.
type Service struct {
	Provider      providers.Provider
	Config        providers.Config
	Images        ImageSource
	MinConfidence float64
}

// NewService creates a service for the named provider and model. An empty
// model picks the provider default.
func NewService(provider, model string, src ImageSource) (*Service, error) {
	p, err := NewProvider(provider)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = providers.DefaultModel(provider)
	}
	return &Service{
		Provider: p,
		Config:   providers.Config{Model: model, Temperature: 0.1},
		Images:   src,
	}, nil
}

// Propose fetches img, asks the model for boxes and maps them to categories.
func (s *Service) Propose(ctx context.Context, img models.Image, categories []models.Category) ([]Proposal, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("no categories to propose boxes for")
	}
	fetched, err := s.Images.Fetch(ctx, img)
	if err != nil {
		return nil, err
	}

	cfg := s.Config
	if cfg.Prompt == "" {
		cfg.Prompt = BuildPrompt(categories)
	}

	slog.Info("Requesting box proposals", "image", img.ID, "model", cfg.Model)
	answer, err := s.Provider.Detect(ctx, cfg, providers.Image{Data: fetched.Data, MimeType: fetched.MimeType})
	if err != nil {
		return nil, fmt.Errorf("failed to get proposals: %w", err)
	}

	proposals, err := ParseProposals(answer, categories, fetched.Width, fetched.Height)
	if err != nil {
		return nil, err
	}
	if s.MinConfidence > 0 {
		kept := proposals[:0]
		for _, p := range proposals {
			if p.Confidence == 0 || p.Confidence >= s.MinConfidence {
				kept = append(kept, p)
			}
		}
		proposals = kept
	}
	slog.Info("Received box proposals", "image", img.ID, "count", len(proposals))
	return proposals, nil
}

// BuildPrompt describes the expected JSON answer for the given categories.
func BuildPrompt(categories []models.Category) string {
	var sb strings.Builder
	sb.WriteString("Find every object in this image that belongs to one of these categories:\n")
	for _, c := range categories {
		sb.WriteString("- ")
		sb.WriteString(c.Name)
		if c.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(c.Description)
		}
		sb.WriteString("\n")
	}
	sb.WriteString(`
Answer with JSON only, in this shape:
{"boxes": [{"label": "<category name>", "box": [x, y, width, height], "confidence": 0.0}]}
x and y are the top-left corner. All four box values are fractions of the image
width and height between 0 and 1. Use an empty list when nothing is found.`)
	return sb.String()
}

type rawBox struct {
	Label      string    `json:"label"`
	Box        []float64 `json:"box"`
	Confidence float64   `json:"confidence"`
}

// ParseProposals reads a model answer. Labels are matched to categories by
// name, case-insensitively; unknown labels and degenerate boxes are dropped.
// Boxes with values above 1 are taken as pixels of a width x height image.
func ParseProposals(answer string, categories []models.Category, width, height int) ([]Proposal, error) {
	text := stripFences(answer)

	var wrapped struct {
		Boxes []rawBox `json:"boxes"`
	}
	var boxes []rawBox
	if err := json.Unmarshal([]byte(text), &wrapped); err == nil {
		boxes = wrapped.Boxes
	} else if err := json.Unmarshal([]byte(text), &boxes); err != nil {
		return nil, fmt.Errorf("failed to parse model answer: %w", err)
	}

	byName := make(map[string]models.Category, len(categories))
	for _, c := range categories {
		byName[strings.ToLower(strings.TrimSpace(c.Name))] = c
	}

	proposals := make([]Proposal, 0, len(boxes))
	for _, b := range boxes {
		cat, ok := byName[strings.ToLower(strings.TrimSpace(b.Label))]
		if !ok {
			slog.Debug("Dropping proposal with unknown label", "label", b.Label)
			continue
		}
		if len(b.Box) != 4 {
			slog.Debug("Dropping proposal with malformed box", "label", b.Label, "box", b.Box)
			continue
		}
		bbox := models.BBox{b.Box[0], b.Box[1], b.Box[2], b.Box[3]}
		if pixelSpace(bbox) {
			if width <= 0 || height <= 0 {
				continue
			}
			bbox = geometry.NormalizeBbox(geometry.Rect{Left: bbox[0], Top: bbox[1], Width: bbox[2], Height: bbox[3]}, float64(width), float64(height))
		}
		bbox = geometry.ClampBbox(bbox)
		if !bbox.InBounds() {
			continue
		}
		proposals = append(proposals, Proposal{
			CategoryID:   cat.ID,
			CategoryName: cat.Name,
			BBox:         bbox,
			Confidence:   b.Confidence,
		})
	}
	return proposals, nil
}

func pixelSpace(b models.BBox) bool {
	for _, v := range b {
		if v > 1 {
			return true
		}
	}
	return false
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
