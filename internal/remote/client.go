// Package remote is the REST client for an annotation dataset backend.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

var (
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned for 409 responses, e.g. an invalid review transition.
	ErrConflict = errors.New("conflict")
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Code, e.Body)
}

// Unwrap maps well-known status codes to sentinel errors.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	}
	return nil
}

// Client talks to one backend. It keeps no package-level state.
type Client struct {
	BaseURL    string
	Token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a new backend client
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func datasetPath(datasetID string, parts ...string) string {
	p := "/dataset/" + url.PathEscape(datasetID)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// do sends a JSON request and decodes a JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Healthcheck returns nil when the backend answers.
func (c *Client) Healthcheck(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthcheck", nil, nil)
}

// ListImages fetches one page of the dataset's unlabeled images.
func (c *Client) ListImages(ctx context.Context, datasetID string, page, limit int) (models.ImagePage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var out models.ImagePage
	err := c.do(ctx, http.MethodGet, datasetPath(datasetID, "unlabeled-images")+"?"+q.Encode(), nil, &out)
	if err != nil {
		return models.ImagePage{}, fmt.Errorf("failed to list images: %w", err)
	}
	return out, nil
}

// ListAllImages walks every page of the listing.
func (c *Client) ListAllImages(ctx context.Context, datasetID string, pageSize int) ([]models.Image, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	var images []models.Image
	for page := 1; ; page++ {
		p, err := c.ListImages(ctx, datasetID, page, pageSize)
		if err != nil {
			return nil, err
		}
		images = append(images, p.Images...)
		if page >= p.TotalPages || len(p.Images) == 0 {
			return images, nil
		}
	}
}

type categoryList struct {
	Categories []models.Category `json:"categories"`
}

// ListCategories fetches the dataset's categories.
func (c *Client) ListCategories(ctx context.Context, datasetID string) ([]models.Category, error) {
	var out categoryList
	if err := c.do(ctx, http.MethodGet, datasetPath(datasetID, "categories"), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return out.Categories, nil
}

// CreateCategory adds a category and returns the stored copy.
func (c *Client) CreateCategory(ctx context.Context, datasetID string, cat models.Category) (models.Category, error) {
	var out models.Category
	if err := c.do(ctx, http.MethodPost, datasetPath(datasetID, "categories"), cat, &out); err != nil {
		return models.Category{}, fmt.Errorf("failed to create category: %w", err)
	}
	return out, nil
}

// UpdateCategory replaces a category's name, color and description.
func (c *Client) UpdateCategory(ctx context.Context, datasetID string, cat models.Category) (models.Category, error) {
	var out models.Category
	if err := c.do(ctx, http.MethodPut, datasetPath(datasetID, "categories", cat.ID), cat, &out); err != nil {
		return models.Category{}, fmt.Errorf("failed to update category %s: %w", cat.ID, err)
	}
	return out, nil
}

// DeleteCategory removes a category.
func (c *Client) DeleteCategory(ctx context.Context, datasetID, categoryID string) error {
	if err := c.do(ctx, http.MethodDelete, datasetPath(datasetID, "categories", categoryID), nil, nil); err != nil {
		return fmt.Errorf("failed to delete category %s: %w", categoryID, err)
	}
	return nil
}

// ReorderCategories sets the category order and returns the reordered list.
func (c *Client) ReorderCategories(ctx context.Context, datasetID string, ids []string) ([]models.Category, error) {
	var out categoryList
	body := map[string][]string{"ids": ids}
	if err := c.do(ctx, http.MethodPut, datasetPath(datasetID, "categories", "reorder"), body, &out); err != nil {
		return nil, fmt.Errorf("failed to reorder categories: %w", err)
	}
	return out.Categories, nil
}

// ListAnnotations fetches the annotations of one image.
func (c *Client) ListAnnotations(ctx context.Context, datasetID, imageID string) ([]models.Annotation, error) {
	q := url.Values{}
	q.Set("imageId", imageID)

	var out models.AnnotationList
	if err := c.do(ctx, http.MethodGet, datasetPath(datasetID, "annotations")+"?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list annotations for image %s: %w", imageID, err)
	}
	return out.Annotations, nil
}

// CreateAnnotation stores a single annotation.
func (c *Client) CreateAnnotation(ctx context.Context, datasetID string, ann models.Annotation) (models.Annotation, error) {
	var out models.Annotation
	if err := c.do(ctx, http.MethodPost, datasetPath(datasetID, "annotations"), ann, &out); err != nil {
		return models.Annotation{}, fmt.Errorf("failed to create annotation: %w", err)
	}
	return out, nil
}

// UpdateAnnotation replaces a stored annotation.
func (c *Client) UpdateAnnotation(ctx context.Context, datasetID string, ann models.Annotation) (models.Annotation, error) {
	var out models.Annotation
	if err := c.do(ctx, http.MethodPut, datasetPath(datasetID, "annotations", ann.ID), ann, &out); err != nil {
		return models.Annotation{}, fmt.Errorf("failed to update annotation %s: %w", ann.ID, err)
	}
	return out, nil
}

// DeleteAnnotation removes a stored annotation.
func (c *Client) DeleteAnnotation(ctx context.Context, datasetID, annotationID string) error {
	if err := c.do(ctx, http.MethodDelete, datasetPath(datasetID, "annotations", annotationID), nil, nil); err != nil {
		return fmt.Errorf("failed to delete annotation %s: %w", annotationID, err)
	}
	return nil
}

// SaveBatch upserts annotations in one call. Partial failure is reported in
// the result, not as an error.
func (c *Client) SaveBatch(ctx context.Context, datasetID string, anns []models.Annotation) (models.BatchResult, error) {
	if anns == nil {
		anns = []models.Annotation{}
	}
	body := map[string][]models.Annotation{"annotations": anns}

	var out models.BatchResult
	if err := c.do(ctx, http.MethodPost, datasetPath(datasetID, "annotations", "batch"), body, &out); err != nil {
		return models.BatchResult{}, fmt.Errorf("failed to save annotations: %w", err)
	}
	return out, nil
}

type stateRequest struct {
	IDs    []string           `json:"ids,omitempty"`
	State  models.ReviewState `json:"state"`
	UserID string             `json:"userId,omitempty"`
}

// SetState moves one annotation to a new review state.
func (c *Client) SetState(ctx context.Context, datasetID, annotationID string, state models.ReviewState, userID string) (models.Annotation, error) {
	var out models.Annotation
	body := stateRequest{State: state, UserID: userID}
	if err := c.do(ctx, http.MethodPut, datasetPath(datasetID, "annotations", annotationID, "state"), body, &out); err != nil {
		return models.Annotation{}, fmt.Errorf("failed to set state of annotation %s: %w", annotationID, err)
	}
	return out, nil
}

// BulkSetState moves several annotations to a new review state.
func (c *Client) BulkSetState(ctx context.Context, datasetID string, ids []string, state models.ReviewState, userID string) (models.BulkStateResult, error) {
	var out models.BulkStateResult
	body := stateRequest{IDs: ids, State: state, UserID: userID}
	if err := c.do(ctx, http.MethodPut, datasetPath(datasetID, "annotations", "bulk-state"), body, &out); err != nil {
		return models.BulkStateResult{}, fmt.Errorf("failed to set state of %d annotations: %w", len(ids), err)
	}
	return out, nil
}
