package httpadapter

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/anshultibby/pocket-fashion/internal/core/domain"
)

// writeWorkbook renders the wardrobe as a two-sheet spreadsheet: the raw
// inventory plus the class/attribute distributions.
func writeWorkbook(w io.Writer, records []domain.GarmentRecord, distribution *domain.WardrobeDistribution) error {
	f := excelize.NewFile()
	defer f.Close()

	const inventorySheet = "Inventory"
	if err := f.SetSheetName("Sheet1", inventorySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := []any{"ID", "Source Image", "Garment Parts", "Labels", "Created At", "Updated At"}
	if err := f.SetSheetRow(inventorySheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, record := range records {
		row := []any{
			record.ID,
			record.SourceImagePath,
			strings.Join(sortedCutoutKeys(record), ", "),
			summarizeLabels(record),
			formatExportTime(record.CreatedAt),
			formatExportTime(record.UpdatedAt),
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(inventorySheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	const distSheet = "Distribution"
	if _, err := f.NewSheet(distSheet); err != nil {
		return fmt.Errorf("create distribution sheet: %w", err)
	}
	row := 1
	row = writeCountSection(f, distSheet, row, "Garment classes", distribution.GarmentClasses)
	writeCountSection(f, distSheet, row, "Attributes", distribution.Attributes)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("stream workbook: %w", err)
	}
	return nil
}

func writeCountSection(f *excelize.File, sheet string, row int, title string, entries []domain.CountEntry) int {
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), title)
	row++
	for _, entry := range entries {
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), entry.Name)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), entry.Count)
		row++
	}
	return row + 1
}

func sortedCutoutKeys(record domain.GarmentRecord) []string {
	keys := make([]string, 0, len(record.Cutouts))
	for key := range record.Cutouts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func summarizeLabels(record domain.GarmentRecord) string {
	var parts []string
	for _, key := range sortedCutoutKeys(record) {
		labels := record.ClassificationResults[key]
		categories := make([]string, 0, len(labels))
		for category := range labels {
			categories = append(categories, string(category))
		}
		sort.Strings(categories)
		var pairs []string
		for _, category := range categories {
			pairs = append(pairs, fmt.Sprintf("%s=%s", category, labels[domain.LabelCategory(category)]))
		}
		if len(pairs) > 0 {
			parts = append(parts, fmt.Sprintf("%s: %s", key, strings.Join(pairs, ", ")))
		}
	}
	return strings.Join(parts, "; ")
}

func formatExportTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
