package report

import (
	"encoding/csv"
	"io"

	"github.com/ternarybob/pricewatch/internal/models"
)

// utf8BOM lets spreadsheet tools detect the encoding of non-ASCII product names
const utf8BOM = "\ufeff"

func encodeCSV(w io.Writer, verdicts []models.ProductVerdict) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, v := range verdicts {
		if err := cw.Write(Row(v)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
