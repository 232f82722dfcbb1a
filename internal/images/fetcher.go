package images

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

// maxImageBytes caps a single download.
const maxImageBytes = 64 << 20

// Fetcher retrieves dataset images over HTTP
type Fetcher struct {
	HTTPClient *http.Client
	// BaseURL resolves relative image URLs, usually the backend address.
	BaseURL string
	// Token is sent as a bearer token when set.
	Token string
}

// NewFetcher creates a new image fetcher
func NewFetcher(baseURL, token string) *Fetcher {
	return &Fetcher{
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		BaseURL: baseURL,
		Token:   token,
	}
}

// Image is a downloaded image with its probed dimensions
type Image struct {
	Data     []byte
	MimeType string
	Format   string
	Width    int
	Height   int
}

// Fetch downloads img and probes its dimensions.
func (f *Fetcher) Fetch(ctx context.Context, img models.Image) (*Image, error) {
	src, err := f.resolve(img.URL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create image request: %w", err)
	}
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image URL returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}

	out, err := Probe(data)
	if err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", img.Filename, err)
	}
	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "image/") {
		out.MimeType = ct
	}
	slog.Debug("Fetched image", "id", img.ID, "bytes", len(data), "width", out.Width, "height", out.Height)
	return out, nil
}

// FetchToFile downloads img into dir and returns the written path.
func (f *Fetcher) FetchToFile(ctx context.Context, img models.Image, dir string) (string, error) {
	fetched, err := f.Fetch(ctx, img)
	if err != nil {
		return "", err
	}
	name := filepath.Base(img.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = img.ID + "." + fetched.Format
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, fetched.Data, 0644); err != nil {
		return "", fmt.Errorf("failed to write image file: %w", err)
	}
	return path, nil
}

// Probe decodes just enough of data to learn its format and size.
func Probe(data []byte) (*Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("image has no area (%dx%d)", cfg.Width, cfg.Height)
	}
	return &Image{
		Data:     data,
		MimeType: "image/" + format,
		Format:   format,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}, nil
}

func (f *Fetcher) resolve(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("image has no URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid image URL %q: %w", raw, err)
	}
	if u.IsAbs() {
		return raw, nil
	}
	if f.BaseURL == "" {
		return "", fmt.Errorf("relative image URL %q without a base URL", raw)
	}
	base, err := url.Parse(f.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", f.BaseURL, err)
	}
	return base.ResolveReference(u).String(), nil
}
