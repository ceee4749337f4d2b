package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/prospecthq/prospect-api/internal/domain"
)

// columns is the header row shared by both output formats.
var columns = []string{
	"URL",
	"Status",
	"Fit Score",
	"Employee Count",
	"Pitch",
	"Executive Summary",
	"Created At",
	"Updated At",
}

// row flattens a company onto the export columns. The executive summary is
// pulled out of the stored result document.
func row(company *domain.Company) []string {
	summary := ""
	if len(company.Result) > 0 {
		summary = domain.ParseResearchOutput(company.Result).ExecutiveSummary
	}

	return []string{
		company.URL,
		string(company.Status),
		deref(company.FitScore),
		deref(company.EmployeeCount),
		deref(company.Pitch),
		summary,
		company.CreatedAt.UTC().Format(time.RFC3339),
		company.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// WriteCSV renders the companies as CSV, header first.
func WriteCSV(w io.Writer, companies []*domain.Company) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, company := range companies {
		if err := cw.Write(row(company)); err != nil {
			return fmt.Errorf("write csv row for %s: %w", company.URL, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// xlsxSheet is the single sheet name of an XLSX export.
const xlsxSheet = "Companies"

// WriteXLSX renders the companies as a single-sheet XLSX workbook.
func WriteXLSX(w io.Writer, companies []*domain.Company) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	index, err := f.NewSheet(xlsxSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("remove default sheet: %w", err)
	}

	writeRow := func(rowIdx int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowIdx)
		if err != nil {
			return err
		}
		cells := make([]any, len(values))
		for i, v := range values {
			cells[i] = v
		}
		return f.SetSheetRow(xlsxSheet, cell, &cells)
	}

	if err := writeRow(1, columns); err != nil {
		return fmt.Errorf("write xlsx header: %w", err)
	}
	for i, company := range companies {
		if err := writeRow(i+2, row(company)); err != nil {
			return fmt.Errorf("write xlsx row for %s: %w", company.URL, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
