// Package evaluation scores model box proposals against approved
// annotations.
package evaluation

import (
	"math"
	"sort"

	"github.com/lehigh-university-libraries/annotator/internal/models"
	"github.com/lehigh-university-libraries/annotator/internal/prelabel"
)

// DefaultIoUThreshold is the overlap a proposal needs to count as a hit.
const DefaultIoUThreshold = 0.5

// IoU is the intersection over union of two normalized boxes.
func IoU(a, b models.BBox) float64 {
	left := math.Max(a[0], b[0])
	top := math.Max(a[1], b[1])
	right := math.Min(a[0]+a[2], b[0]+b[2])
	bottom := math.Min(a[1]+a[3], b[1]+b[3])
	if right <= left || bottom <= top {
		return 0
	}
	inter := (right - left) * (bottom - top)
	union := a[2]*a[3] + b[2]*b[3] - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// BoxMatch pairs a proposal with the annotation it hit.
type BoxMatch struct {
	Proposal     int     `yaml:"proposal"`
	AnnotationID string  `yaml:"annotationId"`
	CategoryID   string  `yaml:"categoryId"`
	IoU          float64 `yaml:"iou"`
}

// Counts are hit and miss tallies.
type Counts struct {
	TruePositives  int `yaml:"truePositives"`
	FalsePositives int `yaml:"falsePositives"`
	FalseNegatives int `yaml:"falseNegatives"`
}

// Precision is TP / (TP + FP).
func (c Counts) Precision() float64 {
	return ratio(c.TruePositives, c.TruePositives+c.FalsePositives)
}

// Recall is TP / (TP + FN).
func (c Counts) Recall() float64 {
	return ratio(c.TruePositives, c.TruePositives+c.FalseNegatives)
}

// F1 is the harmonic mean of precision and recall.
func (c Counts) F1() float64 {
	p, r := c.Precision(), c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func (c *Counts) add(o Counts) {
	c.TruePositives += o.TruePositives
	c.FalsePositives += o.FalsePositives
	c.FalseNegatives += o.FalseNegatives
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// ImageComparison is the outcome of matching one image's proposals.
type ImageComparison struct {
	TruePositives  int        `yaml:"truePositives"`
	FalsePositives int        `yaml:"falsePositives"`
	FalseNegatives int        `yaml:"falseNegatives"`
	Matches        []BoxMatch `yaml:"matches,omitempty"`
	// Missed holds the annotation ids no proposal hit.
	Missed     []string          `yaml:"missed,omitempty"`
	ByCategory map[string]Counts `yaml:"byCategory,omitempty"`
}

// Counts returns the image totals.
func (c ImageComparison) Counts() Counts {
	return Counts{TruePositives: c.TruePositives, FalsePositives: c.FalsePositives, FalseNegatives: c.FalseNegatives}
}

// MeanIoU averages the overlap of the matched pairs.
func (c ImageComparison) MeanIoU() float64 {
	if len(c.Matches) == 0 {
		return 0
	}
	sum := 0.0
	for _, m := range c.Matches {
		sum += m.IoU
	}
	return sum / float64(len(c.Matches))
}

type candidate struct {
	proposal, truth int
	iou             float64
}

// Compare matches proposals to truth greedily by descending IoU. A pair only
// counts when both share a category and overlap by at least threshold; each
// proposal and each annotation is used once.
func Compare(proposals []prelabel.Proposal, truth []models.Annotation, threshold float64) ImageComparison {
	if threshold <= 0 {
		threshold = DefaultIoUThreshold
	}

	var cands []candidate
	for i, p := range proposals {
		for j, a := range truth {
			if p.CategoryID != a.CategoryID {
				continue
			}
			if iou := IoU(p.BBox, a.BBox); iou >= threshold {
				cands = append(cands, candidate{proposal: i, truth: j, iou: iou})
			}
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].iou > cands[j].iou })

	usedProposal := make([]bool, len(proposals))
	usedTruth := make([]bool, len(truth))
	out := ImageComparison{ByCategory: make(map[string]Counts)}
	bump := func(category string, fn func(*Counts)) {
		c := out.ByCategory[category]
		fn(&c)
		out.ByCategory[category] = c
	}
	for _, c := range cands {
		if usedProposal[c.proposal] || usedTruth[c.truth] {
			continue
		}
		usedProposal[c.proposal] = true
		usedTruth[c.truth] = true
		a := truth[c.truth]
		out.Matches = append(out.Matches, BoxMatch{
			Proposal:     c.proposal,
			AnnotationID: a.ID,
			CategoryID:   a.CategoryID,
			IoU:          c.iou,
		})
		bump(a.CategoryID, func(c *Counts) { c.TruePositives++ })
	}

	out.TruePositives = len(out.Matches)
	out.FalsePositives = len(proposals) - out.TruePositives
	for i, used := range usedProposal {
		if !used {
			bump(proposals[i].CategoryID, func(c *Counts) { c.FalsePositives++ })
		}
	}
	for j, used := range usedTruth {
		if !used {
			out.Missed = append(out.Missed, truth[j].ID)
			bump(truth[j].CategoryID, func(c *Counts) { c.FalseNegatives++ })
		}
	}
	out.FalseNegatives = len(out.Missed)
	return out
}
