package remotesync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

const (
	DefaultDebounce = 100 * time.Millisecond
	DefaultCacheTTL = 2 * time.Second
)

type cacheEntry struct {
	annotations []models.Annotation
	fetchedAt   time.Time
}

// LoaderConfig tunes a Loader. Zero values use the defaults.
type LoaderConfig struct {
	Debounce time.Duration
	CacheTTL time.Duration
	Notifier Notifier
	Now      func() time.Time
}

// Loader fetches the annotations of the current image. Rapid requests are
// debounced, concurrent fetches of the same image share one call, recent
// results are served from a short-lived cache, and results for an image that
// is no longer current are dropped.
type Loader struct {
	backend   Backend
	store     Store
	datasetID string
	notifier  Notifier
	ttl       time.Duration
	now       func() time.Time

	debounced func(f func())
	group     singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	cache map[string]cacheEntry
	known map[string][]string
}

// NewLoader creates a loader for one dataset.
func NewLoader(backend Backend, store Store, datasetID string, cfg LoaderConfig) *Loader {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Notifier == nil {
		cfg.Notifier = LogNotifier{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		backend:   backend,
		store:     store,
		datasetID: datasetID,
		notifier:  cfg.Notifier,
		ttl:       cfg.CacheTTL,
		now:       cfg.Now,
		debounced: debounce.New(cfg.Debounce),
		ctx:       ctx,
		cancel:    cancel,
		cache:     make(map[string]cacheEntry),
		known:     make(map[string][]string),
	}
}

// Request schedules a load of imageID after the debounce window. A newer
// request replaces a pending one.
func (l *Loader) Request(imageID string) {
	if imageID == "" {
		return
	}
	l.debounced(func() {
		if l.ctx.Err() != nil {
			return
		}
		if _, err := l.Load(l.ctx, imageID); err != nil {
			l.notifier.Warn("Failed to load annotations", "image", imageID, "error", err)
		}
	})
}

// Load fetches imageID's annotations now and applies them if imageID is
// still current and has no unsaved edits. It reports whether the result was
// applied.
func (l *Loader) Load(ctx context.Context, imageID string) (bool, error) {
	anns, err := l.fetch(ctx, imageID)
	if err != nil {
		return false, err
	}
	if !l.store.LoadAnnotationsIfClean(imageID, anns) {
		slog.Debug("Discarding stale annotations", "image", imageID)
		return false, nil
	}
	l.setKnown(imageID, anns)
	return true, nil
}

// Reload bypasses the cache and replaces imageID's annotations even when
// there are unsaved edits.
func (l *Loader) Reload(ctx context.Context, imageID string) (bool, error) {
	l.Invalidate(imageID)
	anns, err := l.fetch(ctx, imageID)
	if err != nil {
		return false, err
	}
	if !l.store.LoadAnnotationsFor(imageID, anns) {
		return false, nil
	}
	l.setKnown(imageID, anns)
	return true, nil
}

func (l *Loader) fetch(ctx context.Context, imageID string) ([]models.Annotation, error) {
	key := cacheKey(l.datasetID, imageID)

	l.mu.Lock()
	entry, ok := l.cache[key]
	l.mu.Unlock()
	if ok && l.now().Sub(entry.fetchedAt) < l.ttl {
		return append([]models.Annotation(nil), entry.annotations...), nil
	}

	v, err, _ := l.group.Do(key, func() (any, error) {
		anns, err := l.backend.ListAnnotations(ctx, l.datasetID, imageID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch annotations: %w", err)
		}
		l.mu.Lock()
		l.cache[key] = cacheEntry{annotations: anns, fetchedAt: l.now()}
		l.mu.Unlock()
		return anns, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]models.Annotation(nil), v.([]models.Annotation)...), nil
}

// Invalidate drops the cached result for imageID.
func (l *Loader) Invalidate(imageID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, cacheKey(l.datasetID, imageID))
}

// KnownIDs returns the ids the backend held for imageID at the last load or save.
func (l *Loader) KnownIDs(imageID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.known[imageID]...)
}

// Known reports whether id was stored on the backend for imageID at the last
// load or save.
func (l *Loader) Known(imageID, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return lo.Contains(l.known[imageID], id)
}

func (l *Loader) setKnown(imageID string, anns []models.Annotation) {
	l.setKnownIDs(imageID, ids(anns))
}

func (l *Loader) setKnownIDs(imageID string, ids []string) {
	l.mu.Lock()
	l.known[imageID] = ids
	l.mu.Unlock()
}

func ids(anns []models.Annotation) []string {
	out := make([]string, 0, len(anns))
	for _, a := range anns {
		out = append(out, a.ID)
	}
	return out
}

// Close cancels pending debounced loads.
func (l *Loader) Close() {
	l.cancel()
}
