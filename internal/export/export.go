// Package export writes collected texts and reports as spreadsheets.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/DeafMist/gpu-opinion-radar/internal/models"
)

// utf8BOM lets spreadsheet apps detect UTF-8 when opening the CSV.
const utf8BOM = "\ufeff"

// Table is a header row plus data rows.
type Table struct {
	Sheet  string
	Header []string
	Rows   [][]string
}

// TextsTable lists collected texts, one row per item.
func TextsTable(items []models.TextItem) Table {
	t := Table{Sheet: "texts", Header: []string{"post_id", "source", "text"}}
	for _, it := range items {
		t.Rows = append(t.Rows, []string{it.PostID, string(it.Source), it.RawText})
	}
	return t
}

// ReportTable lists every analyzed item with its label and confidence.
func ReportTable(report *models.Report) Table {
	t := Table{Sheet: "report", Header: []string{"post_id", "source", "text", "label", "confidence"}}
	for _, it := range report.Items {
		t.Rows = append(t.Rows, []string{
			it.PostID,
			string(it.Source),
			it.Text,
			it.Label.DisplayName(),
			strconv.FormatFloat(it.Confidence, 'f', 2, 64),
		})
	}
	return t
}

// WriteCSV writes t as UTF-8 CSV with a byte order mark.
func WriteCSV(w io.Writer, t Table) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

// WriteXLSX writes t as a single-sheet workbook.
func WriteXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := t.Sheet
	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	rows := append([][]string{t.Header}, t.Rows...)
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return fmt.Errorf("cell name: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("set %s: %w", cell, err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Write picks the format from the file extension of path.
func Write(w io.Writer, path string, t Table) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return WriteCSV(w, t)
	case ".xlsx":
		return WriteXLSX(w, t)
	default:
		return fmt.Errorf("unsupported export format %q", filepath.Ext(path))
	}
}
