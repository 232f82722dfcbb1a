package prelabel

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/annotator/internal/images"
	"github.com/lehigh-university-libraries/annotator/internal/models"
	"github.com/lehigh-university-libraries/annotator/internal/providers"
)

var testCategories = []models.Category{
	{ID: "c1", Name: "Crack"},
	{ID: "c2", Name: "Spall", Description: "concrete flaking"},
}

func TestParseProposals(t *testing.T) {
	tests := []struct {
		name     string
		answer   string
		expected []Proposal
	}{
		{
			name:   "wrapped object",
			answer: `{"boxes": [{"label": "crack", "box": [0.1, 0.2, 0.3, 0.4], "confidence": 0.9}]}`,
			expected: []Proposal{
				{CategoryID: "c1", CategoryName: "Crack", BBox: models.BBox{0.1, 0.2, 0.3, 0.4}, Confidence: 0.9},
			},
		},
		{
			name:   "fenced bare array",
			answer: "```json\n[{\"label\": \"Spall\", \"box\": [0.5, 0.5, 0.2, 0.2]}]\n```",
			expected: []Proposal{
				{CategoryID: "c2", CategoryName: "Spall", BBox: models.BBox{0.5, 0.5, 0.2, 0.2}},
			},
		},
		{
			name:   "pixel coordinates",
			answer: `{"boxes": [{"label": "Crack", "box": [80, 45, 160, 90]}]}`,
			expected: []Proposal{
				{CategoryID: "c1", CategoryName: "Crack", BBox: models.BBox{0.1, 0.1, 0.2, 0.2}},
			},
		},
		{
			name:     "unknown label and bad boxes dropped",
			answer:   `{"boxes": [{"label": "Rust", "box": [0.1, 0.1, 0.1, 0.1]}, {"label": "Crack", "box": [0.1, 0.1]}, {"label": "Crack", "box": [0.1, 0.1, 0, 0.2]}]}`,
			expected: []Proposal{},
		},
		{
			name:   "overflowing box is clamped",
			answer: `{"boxes": [{"label": "Crack", "box": [0.9, 0.5, 0.3, 0.2]}]}`,
			expected: []Proposal{
				{CategoryID: "c1", CategoryName: "Crack", BBox: models.BBox{0.7, 0.5, 0.3, 0.2}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProposals(tt.answer, testCategories, 800, 450)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if len(got) != len(tt.expected) {
				t.Fatalf("Expected %d proposals, got %+v", len(tt.expected), got)
			}
			for i := range got {
				e := tt.expected[i]
				if got[i].CategoryID != e.CategoryID || got[i].Confidence != e.Confidence {
					t.Errorf("Expected %+v, got %+v", e, got[i])
				}
				for k := range e.BBox {
					if math.Abs(got[i].BBox[k]-e.BBox[k]) > 1e-9 {
						t.Errorf("Expected bbox %v, got %v", e.BBox, got[i].BBox)
						break
					}
				}
			}
		})
	}
}

func TestParseProposalsRejectsProse(t *testing.T) {
	if _, err := ParseProposals("I see a crack near the top.", testCategories, 800, 450); err == nil {
		t.Error("Expected error for non-JSON answer")
	}
}

func TestBuildPromptListsCategories(t *testing.T) {
	prompt := BuildPrompt(testCategories)
	for _, want := range []string{"- Crack\n", "- Spall: concrete flaking\n", `"boxes"`} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Expected prompt to contain %q", want)
		}
	}
}

type stubProvider struct {
	answer string
	got    providers.Config
}

func (s *stubProvider) Detect(ctx context.Context, config providers.Config, img providers.Image) (string, error) {
	s.got = config
	return s.answer, nil
}

type stubImages struct{}

func (stubImages) Fetch(ctx context.Context, img models.Image) (*images.Image, error) {
	return &images.Image{Data: []byte("x"), MimeType: "image/png", Width: 100, Height: 100}, nil
}

func TestServiceProposeFiltersConfidence(t *testing.T) {
	p := &stubProvider{answer: `{"boxes": [
		{"label": "Crack", "box": [0.1, 0.1, 0.2, 0.2], "confidence": 0.9},
		{"label": "Crack", "box": [0.5, 0.5, 0.2, 0.2], "confidence": 0.2}
	]}`}
	svc := &Service{Provider: p, Config: providers.Config{Model: "m"}, Images: stubImages{}, MinConfidence: 0.5}

	got, err := svc.Propose(context.Background(), models.Image{ID: "img"}, testCategories)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(got) != 1 || got[0].Confidence != 0.9 {
		t.Errorf("Expected only the confident proposal, got %+v", got)
	}
	if !strings.Contains(p.got.Prompt, "Crack") {
		t.Errorf("Expected default prompt to be built, got %q", p.got.Prompt)
	}
}

func TestNewProvider(t *testing.T) {
	for _, name := range []string{"gemini", "ollama", "openai"} {
		if _, err := NewProvider(name); err != nil {
			t.Errorf("Expected provider %s, got %v", name, err)
		}
	}
	if _, err := NewProvider("bard"); err == nil {
		t.Error("Expected error for unknown provider")
	}
}
