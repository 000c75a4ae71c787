package report

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/pricewatch/internal/models"
)

var pdfColumnWidths = []float64{90, 30, 34, 32, 30, 30}

func encodePDF(w io.Writer, verdicts []models.ProductVerdict) error {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, "Market Price Reconciliation", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 6, summaryLine(verdicts), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	// Core fonts are cp1252; product names may carry other scripts
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	writeHeader := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for i, c := range Columns {
			pdf.CellFormat(pdfColumnWidths[i], 7, c, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
		pdf.SetFillColor(255, 255, 255)
	}

	writeHeader()
	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()

	for _, v := range verdicts {
		if pdf.GetY()+6 > pageHeight-bottom {
			pdf.AddPage()
			writeHeader()
		}
		for i, value := range Row(v) {
			align := "R"
			if i == 0 || i == 3 {
				align = "L"
			}
			if value == "" {
				value = "-"
			}
			if i == 0 {
				value = truncate(tr(value), 60)
			}
			pdf.CellFormat(pdfColumnWidths[i], 6, value, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}

func summaryLine(verdicts []models.ProductVerdict) string {
	tally := models.StatusTally(verdicts)
	return fmt.Sprintf("Generated %s - %d products: %d overpriced, %d underpriced, %d at market, %d indeterminate",
		time.Now().Format("2006-01-02 15:04"),
		len(verdicts),
		tally[models.PriceStatusOverpriced],
		tally[models.PriceStatusUnderpriced],
		tally[models.PriceStatusAtMarket],
		tally[models.PriceStatusIndeterminate])
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
