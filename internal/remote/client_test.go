package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret-token")
	if err := c.Healthcheck(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Expected bearer header, got %q", gotAuth)
	}
}

func TestListAllImagesPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dataset/ds-1/unlabeled-images" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		page := r.URL.Query().Get("page")
		resp := models.ImagePage{Page: 1, Limit: 2, Total: 3, TotalPages: 2}
		if page == "1" {
			resp.Images = []models.Image{{ID: "a"}, {ID: "b"}}
		} else {
			resp.Page = 2
			resp.Images = []models.Image{{ID: "c"}}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	images, err := NewClient(srv.URL, "").ListAllImages(context.Background(), "ds-1", 2)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(images) != 3 || images[2].ID != "c" {
		t.Errorf("Expected 3 images ending in c, got %+v", images)
	}
}

func TestSaveBatchDecodesPartialResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/dataset/ds-1/annotations/batch" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Annotations []models.Annotation `json:"annotations"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(models.BatchResult{
			Saved:  len(body.Annotations) - 1,
			Failed: 1,
			Errors: []models.BatchError{{ID: "x", Message: "bad bbox"}},
			IDs:    map[string]string{"local-1": "srv-1"},
		})
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, "").SaveBatch(context.Background(), "ds-1", []models.Annotation{{ID: "local-1"}, {ID: "x"}})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if res.Saved != 1 || res.Failed != 1 || res.IDs["local-1"] != "srv-1" {
		t.Errorf("Unexpected result %+v", res)
	}
}

func TestStatusErrorsMapToSentinels(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{name: "not found", status: http.StatusNotFound, sentinel: ErrNotFound},
		{name: "conflict", status: http.StatusConflict, sentinel: ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "").SetState(context.Background(), "ds", "a1", models.StateApproved, "u")
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("Expected %v, got %v", tt.sentinel, err)
			}
			var se *StatusError
			if !errors.As(err, &se) || se.Code != tt.status || se.Body != "nope" {
				t.Errorf("Expected StatusError %d, got %v", tt.status, err)
			}
		})
	}
}

func TestServerErrorIsNotSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").ListCategories(context.Background(), "ds")
	if err == nil {
		t.Fatal("Expected error for 500")
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		t.Errorf("Expected plain status error, got %v", err)
	}
}
