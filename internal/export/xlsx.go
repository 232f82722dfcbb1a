package export

import (
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

const (
	annotationsSheet = "Annotations"
	summarySheet     = "Summary"
)

var reviewStates = []models.ReviewState{
	models.StateDraft,
	models.StateReviewed,
	models.StateApproved,
	models.StateRejected,
}

// WriteXLSX writes a review workbook: one row per annotation on the first
// sheet and per-category state counts on the second.
func WriteXLSX(path string, ds Dataset) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", annotationsSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	header := []interface{}{
		"image_id", "filename", "annotation_id", "category", "x", "y", "width", "height",
		"state", "created_by", "reviewed_by", "approved_by", "updated_at",
	}
	if err := f.SetSheetRow(annotationsSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	rows := Rows(ds)
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{
			r.ImageID, r.Filename, r.AnnotationID, r.CategoryName, r.X, r.Y, r.Width, r.Height,
			r.State, r.CreatedBy, r.ReviewedBy, r.ApprovedBy, r.UpdatedAt,
		}
		if err := f.SetSheetRow(annotationsSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	if err := f.AutoFilter(annotationsSheet, fmt.Sprintf("A1:M%d", len(rows)+1), nil); err != nil {
		return fmt.Errorf("failed to add filter: %w", err)
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to add summary sheet: %w", err)
	}
	summaryHeader := []interface{}{"category", "total"}
	for _, s := range reviewStates {
		summaryHeader = append(summaryHeader, string(s))
	}
	if err := f.SetSheetRow(summarySheet, "A1", &summaryHeader); err != nil {
		return fmt.Errorf("failed to write summary header: %w", err)
	}
	for i, c := range Summarize(ds) {
		values := []interface{}{c.CategoryName, c.Total}
		for _, s := range reviewStates {
			values = append(values, c.ByState[string(s)])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	slog.Info("Wrote xlsx export", "path", path, "rows", len(rows))
	return nil
}
