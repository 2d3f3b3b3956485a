package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// pdfColumnWidths lays out one entry row on an A4 portrait page. The day
// column is dropped because entries render under per-day section headings.
var pdfColumnWidths = map[string]float64{
	"start_time":       22,
	"end_time":         22,
	"subject":          56,
	"teacher":          45,
	"duration_minutes": 20,
	"status":           25,
}

// PDFExporter renders a weekly schedule as a day-sectioned PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a printable timetable: a title naming the batch, then each
// scheduled weekday as a heading followed by its sessions in start order.
func (e *PDFExporter) Render(schedule Schedule) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, fmt.Sprintf("WEEKLY TIMETABLE: BATCH %s", schedule.BatchID), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	for _, day := range schedule.Days {
		if len(day.Entries) == 0 {
			continue
		}

		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 8, day.Name, "", 1, "L", false, 0, "")

		pdf.SetFont("Arial", "B", 9)
		for _, col := range scheduleColumns[1:] {
			pdf.CellFormat(pdfColumnWidths[col], 7, col, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 9)
		for _, entry := range day.Entries {
			record := entry.record(day.Name)
			for i, col := range scheduleColumns[1:] {
				pdf.CellFormat(pdfColumnWidths[col], 7, record[i+1], "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.Ln(3)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render timetable pdf: %w", err)
	}
	return buf.Bytes(), nil
}
