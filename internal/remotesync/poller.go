package remotesync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

// DefaultPollInterval is how often the current image is checked for remote edits.
const DefaultPollInterval = 5 * time.Second

// Poller periodically compares the backend's copy of the current image with
// the local one. A conflict is an annotation present on both sides whose
// UpdatedAt differs. The user is told once per image; the flag stays up until
// ClearConflicts.
type Poller struct {
	backend   Backend
	store     Store
	datasetID string
	notifier  Notifier
	interval  time.Duration

	mu        sync.Mutex
	imageID   string
	visible   bool
	conflicts bool
	saves     SaveState
	stop      chan struct{}
	wg        sync.WaitGroup
}

// SaveState exposes save progress to the poller. Generation advances when a
// save finishes, before Saving turns false.
type SaveState interface {
	Saving() bool
	Generation() uint64
}

// NewPoller creates a visible, stopped poller.
func NewPoller(backend Backend, store Store, datasetID string, interval time.Duration, notifier Notifier) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Poller{
		backend:   backend,
		store:     store,
		datasetID: datasetID,
		notifier:  notifier,
		interval:  interval,
		visible:   true,
	}
}

// Reset tears down the running ticker and starts a fresh one for imageID.
// The conflict flag is cleared.
func (p *Poller) Reset(imageID string) {
	p.mu.Lock()
	p.stopLocked()
	p.imageID = imageID
	p.conflicts = false
	if p.visible && imageID != "" {
		p.startLocked()
	}
	p.mu.Unlock()
}

// SetVisible suspends polling while hidden. Becoming visible checks at once
// and restarts the ticker.
func (p *Poller) SetVisible(visible bool) {
	p.mu.Lock()
	if p.visible == visible {
		p.mu.Unlock()
		return
	}
	p.visible = visible
	if !visible {
		p.stopLocked()
		p.mu.Unlock()
		return
	}
	imageID := p.imageID
	if imageID != "" {
		p.startLocked()
	}
	p.mu.Unlock()

	if imageID != "" {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.check(imageID)
		}()
	}
}

// WatchSaves makes checks skip results that may straddle a save. A save
// rewrites UpdatedAt on the backend before the local copies catch up.
func (p *Poller) WatchSaves(saves SaveState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves = saves
}

// Stop halts polling and waits for in-flight checks.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopLocked()
	p.mu.Unlock()
	p.wg.Wait()
}

// HasConflicts reports whether a remote edit was seen for the current image.
func (p *Poller) HasConflicts() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conflicts
}

// ClearConflicts lowers the conflict flag, after a successful reload.
func (p *Poller) ClearConflicts() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conflicts = false
}

func (p *Poller) startLocked() {
	stop := make(chan struct{})
	p.stop = stop
	imageID := p.imageID
	p.wg.Add(1)
	go p.run(imageID, stop)
}

func (p *Poller) stopLocked() {
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
}

func (p *Poller) run(imageID string, stop chan struct{}) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	slog.Debug("Started conflict polling", "image", imageID, "interval", p.interval)
	for {
		select {
		case <-stop:
			slog.Debug("Stopped conflict polling", "image", imageID)
			return
		case <-ticker.C:
			p.check(imageID)
		}
	}
}

func (p *Poller) check(imageID string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()
	if _, err := p.Check(ctx, imageID); err != nil {
		slog.Warn("Conflict check failed", "image", imageID, "error", err)
	}
}

// Check compares the remote and local annotations of imageID once. It
// reports whether a conflict was found on this check. A check that overlaps
// a save is dropped.
func (p *Poller) Check(ctx context.Context, imageID string) (bool, error) {
	p.mu.Lock()
	saves := p.saves
	p.mu.Unlock()
	var gen uint64
	if saves != nil {
		if saves.Saving() {
			slog.Debug("Skipping conflict check during save", "image", imageID)
			return false, nil
		}
		gen = saves.Generation()
	}

	remote, err := p.backend.ListAnnotations(ctx, p.datasetID, imageID)
	if err != nil {
		return false, fmt.Errorf("failed to fetch remote annotations: %w", err)
	}
	if saves != nil && (saves.Saving() || saves.Generation() != gen) {
		slog.Debug("Dropping conflict check that overlapped a save", "image", imageID)
		return false, nil
	}
	if p.store.CurrentImageID() != imageID {
		return false, nil
	}
	if !Conflicts(p.store.CurrentAnnotations(), remote) {
		return false, nil
	}

	p.mu.Lock()
	if p.imageID != imageID {
		p.mu.Unlock()
		return false, nil
	}
	first := !p.conflicts
	p.conflicts = true
	p.mu.Unlock()

	if first {
		p.notifier.Warn("Annotations were changed by someone else; reload to see them", "image", imageID)
	}
	return true, nil
}

// Conflicts reports whether any annotation id present in both lists carries
// a different UpdatedAt.
func Conflicts(local, remote []models.Annotation) bool {
	updated := make(map[string]time.Time, len(local))
	for _, a := range local {
		updated[a.ID] = a.UpdatedAt
	}
	for _, r := range remote {
		if t, ok := updated[r.ID]; ok && !t.Equal(r.UpdatedAt) {
			return true
		}
	}
	return false
}
