package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// DescriptorOutcome summarises one descriptor's sweep within an anonymization pass.
type DescriptorOutcome struct {
	RecordType string
	Matched    int
	Redacted   int
	Skipped    bool
}

// DeletionReport holds the data rendered into the compliance report. The
// subject email is deliberately absent: the report outlives the redacted data.
type DeletionReport struct {
	RequestID   string
	CompletedAt time.Time
	Outcomes    []DescriptorOutcome
}

// ReportRenderer produces the PDF compliance report for a completed pass.
type ReportRenderer struct{}

// NewReportRenderer constructs a report renderer.
func NewReportRenderer() *ReportRenderer {
	return &ReportRenderer{}
}

// Render creates the PDF document summarising the anonymization pass.
func (r *ReportRenderer) Render(report DeletionReport) ([]byte, error) {
	if report.RequestID == "" {
		return nil, fmt.Errorf("report requires a request id")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, "PERSONAL DATA DELETION REPORT", "", 1, "C", false, 0, "")
	pdf.Ln(5)

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 7, fmt.Sprintf("Request: %s", report.RequestID), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("Completed: %s", report.CompletedAt.UTC().Format(time.RFC3339)), "", 1, "", false, 0, "")
	pdf.Ln(5)

	headers := []string{"Record Type", "Matched", "Redacted", "Skipped"}
	colWidth := 190.0 / float64(len(headers))
	pdf.SetFont("Arial", "B", 10)
	for _, header := range headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, outcome := range report.Outcomes {
		skipped := "no"
		if outcome.Skipped {
			skipped = "yes"
		}
		pdf.CellFormat(colWidth, 7, outcome.RecordType, "1", 0, "", false, 0, "")
		pdf.CellFormat(colWidth, 7, fmt.Sprintf("%d", outcome.Matched), "1", 0, "R", false, 0, "")
		pdf.CellFormat(colWidth, 7, fmt.Sprintf("%d", outcome.Redacted), "1", 0, "R", false, 0, "")
		pdf.CellFormat(colWidth, 7, skipped, "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render report pdf: %w", err)
	}
	return buf.Bytes(), nil
}
