package report

import (
	"fmt"
	"io"

	"github.com/ternarybob/pricewatch/internal/models"
	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Report"

func encodeXLSX(w io.Writer, verdicts []models.ProductVerdict) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), xlsxSheet); err != nil {
		return err
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	lastHeader, err := excelize.CoordinatesToCellName(len(Columns), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(xlsxSheet, "A1", lastHeader, bold); err != nil {
		return err
	}

	for i, v := range verdicts {
		cell := fmt.Sprintf("A%d", i+2)
		row := []interface{}{
			v.ProductName,
			v.InternalPrice,
			floatCell(v.MarketAverage),
			string(v.Status),
			intCell(v.MaxReviews),
			floatCell(v.AvgRating),
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
			return err
		}
	}

	return f.Write(w)
}

// Numeric cells stay numeric; missing values are left blank
func floatCell(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func intCell(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
