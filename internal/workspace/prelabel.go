package workspace

import (
	"context"
	"fmt"

	"github.com/lehigh-university-libraries/annotator/internal/models"
	"github.com/lehigh-university-libraries/annotator/internal/prelabel"
	"github.com/lehigh-university-libraries/annotator/internal/session"
)

// Proposer suggests boxes for an image.
type Proposer interface {
	Propose(ctx context.Context, img models.Image, categories []models.Category) ([]prelabel.Proposal, error)
}

// Prelabel asks p for boxes on the current image and adds them as draft
// annotations in a single undoable step. It returns how many were added.
func (w *Workspace) Prelabel(ctx context.Context, p Proposer) (int, error) {
	if !w.ready() {
		return 0, ErrNotReady
	}
	img, ok := w.store.CurrentImage()
	if !ok {
		return 0, ErrNotReady
	}

	proposals, err := p.Propose(ctx, img, w.Categories())
	if err != nil {
		w.notifier.Warn("Pre-labeling failed", "image", img.ID, "error", err)
		return 0, fmt.Errorf("failed to pre-label image %s: %w", img.ID, err)
	}
	if w.store.CurrentImageID() != img.ID {
		return 0, nil
	}

	items := make([]session.NewAnnotation, 0, len(proposals))
	for _, prop := range proposals {
		cat, ok := w.Category(prop.CategoryID)
		if !ok {
			continue
		}
		items = append(items, session.NewAnnotation{
			BBox:         prop.BBox,
			CategoryID:   cat.ID,
			CategoryName: cat.Name,
			State:        models.StateDraft,
		})
	}
	added := w.store.AddAnnotations(items)
	if len(added) > 0 {
		w.notifier.Info("Added proposed boxes", "image", img.ID, "count", len(added))
	}
	return len(added), nil
}
