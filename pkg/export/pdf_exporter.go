package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageWidth   = 277.0 // A4 landscape minus 10mm margins
	headerLineH = 8.0
	bodyLineH   = 7.0
)

// columnWeights sizes each column relative to the others, in Headers order.
var columnWeights = []float64{1.4, 0.7, 0.7, 0.7, 1.2, 1.1, 1.3, 0.8, 2.1}

// PDFExporter renders assignment rows as a landscape table. Rows carrying soft violations
// are shaded, and the header repeats on every page.
type PDFExporter struct {
	widths []float64
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	total := 0.0
	for _, w := range columnWeights {
		total += w
	}
	widths := make([]float64, len(columnWeights))
	for i, w := range columnWeights {
		widths[i] = pageWidth * w / total
	}
	return &PDFExporter{widths: widths}
}

// Render writes title, a penalty summary line and the table body.
func (e *PDFExporter) Render(rows []Row, title string) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() > 1 {
			e.tableHeader(pdf)
		}
	})
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
	}
	penalty, flagged := summarize(rows)
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("%d assignments, total penalty %d, %d with soft violations", len(rows), penalty, flagged), "", 1, "C", false, 0, "")
	pdf.Ln(3)

	e.tableHeader(pdf)
	pdf.SetFont("Arial", "", 8)
	pdf.SetFillColor(255, 236, 204)
	for _, row := range rows {
		shade := row.SoftViolations != ""
		for i, value := range row.values() {
			pdf.CellFormat(e.widths[i], bodyLineH, value, "1", 0, "", shade, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) tableHeader(pdf *gofpdf.Fpdf) {
	pdf.SetFont("Arial", "B", 9)
	for i, header := range Headers {
		pdf.CellFormat(e.widths[i], headerLineH, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 8)
}

func summarize(rows []Row) (penalty, flagged int) {
	for _, row := range rows {
		penalty += row.Penalty
		if row.SoftViolations != "" {
			flagged++
		}
	}
	return penalty, flagged
}
