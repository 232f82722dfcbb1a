package providers

import (
	"context"
	"fmt"
	"os"
)

// Config represents the configuration for a vision model provider
type Config struct {
	Model       string
	Temperature float64
	Prompt      string
}

// Image is the picture sent along with the prompt
type Image struct {
	Data     []byte
	MimeType string
}

// Provider defines the interface for a vision model provider. Detect returns
// the model's raw text answer to a prompt about the image.
type Provider interface {
	Detect(ctx context.Context, config Config, img Image) (string, error)
}

// DefaultModel returns the model used for provider when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case "openai":
		if model := os.Getenv("OPENAI_MODEL"); model != "" {
			return model
		}
		return "gpt-4o"
	case "ollama":
		if model := os.Getenv("OLLAMA_MODEL"); model != "" {
			return model
		}
		return "qwen2.5vl:7b"
	case "gemini":
		if model := os.Getenv("GEMINI_MODEL"); model != "" {
			return model
		}
		return "gemini-1.5-flash"
	}
	return ""
}

// ErrUnsupported is returned for unknown provider names.
func ErrUnsupported(provider string) error {
	return fmt.Errorf("unsupported provider: %s", provider)
}
