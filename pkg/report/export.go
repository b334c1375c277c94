// Package report renders projections as spreadsheets, PDFs and charts.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/acepenergy/acep/pkg/projection"
)

// Format is an export file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// Projection is what gets exported.
type Projection struct {
	Title     string
	Generated time.Time
	Results   []projection.DailyResult
	Summary   projection.Summary
}

// Build renders p in format f.
func Build(f Format, p Projection) ([]byte, error) {
	switch f {
	case FormatXLSX:
		return BuildProjectionXLSX(p)
	case FormatPDF:
		return BuildProjectionPDF(p)
	default:
		return nil, fmt.Errorf("unknown export format: %q", f)
	}
}

// BuildProjectionPDF renders a summary page followed by one table row per day.
func BuildProjectionPDF(p Projection) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, p.Title)
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", p.Generated.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Days: %d (safe %d, warning %d, insufficient %d)",
		p.Summary.TotalDays, p.Summary.SafeDays, p.Summary.WarningDays, p.Summary.InsufficientDays))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Consumption (kWh): %.2f", p.Summary.TotalConsumption))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Generation (kWh): %.2f", p.Summary.TotalGeneration))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Lowest Storage (kWh): %.2f", p.Summary.MinStorageAfter))
	pdf.Ln(5)
	if !p.Summary.FirstInsufficient.IsZero() {
		pdf.Cell(0, 6, fmt.Sprintf("First Insufficient Day: %s", p.Summary.FirstInsufficient))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 9)
	for _, h := range pdfColumns {
		pdf.CellFormat(h.width, 6, h.title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, r := range p.Results {
		pdf.CellFormat(pdfColumns[0].width, 6, r.Date.String(), "1", 0, "C", false, 0, "")
		pdf.CellFormat(pdfColumns[1].width, 6, string(r.Status), "1", 0, "C", false, 0, "")
		pdf.CellFormat(pdfColumns[2].width, 6, fmt.Sprintf("%.2f", r.StorageBefore), "1", 0, "R", false, 0, "")
		pdf.CellFormat(pdfColumns[3].width, 6, fmt.Sprintf("%.2f", r.TotalConsumption), "1", 0, "R", false, 0, "")
		pdf.CellFormat(pdfColumns[4].width, 6, fmt.Sprintf("%.2f", r.TotalGeneration), "1", 0, "R", false, 0, "")
		pdf.CellFormat(pdfColumns[5].width, 6, fmt.Sprintf("%.2f", r.StorageAfter), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var pdfColumns = []struct {
	title string
	width float64
}{
	{"Date", 28},
	{"Status", 28},
	{"Storage Before", 32},
	{"Consumption", 32},
	{"Generation", 32},
	{"Storage After", 32},
}

// BuildProjectionXLSX renders a summary sheet and a days sheet.
func BuildProjectionXLSX(p Projection) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	daysSheet := "days"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(daysSheet); err != nil {
		return nil, err
	}

	summaryRows := [][2]any{
		{"Title", p.Title},
		{"Generated", p.Generated.Format(time.RFC3339)},
		{"Total Days", p.Summary.TotalDays},
		{"Safe Days", p.Summary.SafeDays},
		{"Warning Days", p.Summary.WarningDays},
		{"Insufficient Days", p.Summary.InsufficientDays},
		{"Total Consumption (kWh)", p.Summary.TotalConsumption},
		{"Total Generation (kWh)", p.Summary.TotalGeneration},
		{"Lowest Storage (kWh)", p.Summary.MinStorageAfter},
		{"First Insufficient Day", p.Summary.FirstInsufficient.String()},
	}
	for i, row := range summaryRows {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), row[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), row[1])
	}

	headers := []string{"Date", "Status", "Storage Before (kWh)", "Consumption (kWh)", "Generation (kWh)", "Net (kWh)", "Storage After (kWh)"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(daysSheet, cell, h)
	}
	for i, r := range p.Results {
		row := i + 2
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("A%d", row), r.Date.String())
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("B%d", row), string(r.Status))
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("C%d", row), r.StorageBefore)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("D%d", row), r.TotalConsumption)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("E%d", row), r.TotalGeneration)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("F%d", row), r.NetEnergy)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("G%d", row), r.StorageAfter)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
