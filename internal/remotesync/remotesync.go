// Package remotesync keeps the session store in step with the backend: it
// loads annotations when the current image changes, polls for concurrent
// edits and saves local changes in batches.
package remotesync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

// Backend is the part of the REST client remotesync needs.
type Backend interface {
	ListAnnotations(ctx context.Context, datasetID, imageID string) ([]models.Annotation, error)
	SaveBatch(ctx context.Context, datasetID string, anns []models.Annotation) (models.BatchResult, error)
	DeleteAnnotation(ctx context.Context, datasetID, annotationID string) error
}

// Store is the part of the session store remotesync reads and writes.
type Store interface {
	CurrentImageID() string
	CurrentAnnotations() []models.Annotation
	LoadAnnotationsFor(imageID string, anns []models.Annotation) bool
	LoadAnnotationsIfClean(imageID string, anns []models.Annotation) bool
	ApplySaved(idMap map[string]string, saved []models.Annotation)
	MarkSaved()
}

// Notifier surfaces user-facing notices.
type Notifier interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// LogNotifier writes notices to a slog logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}

// Info logs msg at info level.
func (n LogNotifier) Info(msg string, args ...any) { n.logger().Info(msg, args...) }

// Warn logs msg at warn level.
func (n LogNotifier) Warn(msg string, args ...any) { n.logger().Warn(msg, args...) }

func cacheKey(datasetID, imageID string) string {
	return fmt.Sprintf("%s-%s", datasetID, imageID)
}
