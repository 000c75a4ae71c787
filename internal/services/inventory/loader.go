// Package inventory loads the internal product catalog from csv or xlsx files.
package inventory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pricewatch/internal/common"
	"github.com/ternarybob/pricewatch/internal/models"
	"github.com/xuri/excelize/v2"
)

// SourceUnreadableError is returned when the catalog cannot be opened or parsed at all
type SourceUnreadableError struct {
	Path string
	Err  error
}

func (e *SourceUnreadableError) Error() string {
	return fmt.Sprintf("inventory source %s unreadable: %v", e.Path, e.Err)
}

func (e *SourceUnreadableError) Unwrap() error {
	return e.Err
}

// ErrUnsupportedFormat is wrapped in SourceUnreadableError for unknown file extensions
var ErrUnsupportedFormat = errors.New("unsupported inventory format")

// Options selects the catalog columns (0-based) and the header labels to skip
type Options struct {
	NameColumn   int
	PriceColumn  int
	HeaderLabels []string
	Sheet        string
}

// OptionsFromConfig builds loader options from the [inventory] section
func OptionsFromConfig(config common.InventoryConfig) Options {
	return Options{
		NameColumn:   config.NameColumn,
		PriceColumn:  config.PriceColumn,
		HeaderLabels: config.HeaderLabels,
		Sheet:        config.Sheet,
	}
}

// Loader reads catalog rows into InventoryItems
type Loader struct {
	options Options
	headers map[string]struct{}
	logger  arbor.ILogger
}

// NewLoader creates a loader with the given column options
func NewLoader(options Options, logger arbor.ILogger) *Loader {
	headers := make(map[string]struct{}, len(options.HeaderLabels))
	for _, label := range options.HeaderLabels {
		headers[normalizeLabel(label)] = struct{}{}
	}
	return &Loader{options: options, headers: headers, logger: logger}
}

// Load reads the catalog at path. Rows without a usable name and numeric price are skipped.
func (l *Loader) Load(ctx context.Context, path string) ([]models.InventoryItem, error) {
	rows, err := l.readRows(path)
	if err != nil {
		return nil, &SourceUnreadableError{Path: path, Err: err}
	}

	items := make([]models.InventoryItem, 0, len(rows))
	skipped := 0
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		item, ok := l.parseRow(row, i+1)
		if !ok {
			skipped++
			continue
		}
		items = append(items, item)
	}

	l.logger.Info().
		Str("path", path).
		Int("items", len(items)).
		Int("skipped_rows", skipped).
		Msg("Inventory loaded")

	return items, nil
}

func (l *Loader) parseRow(row []string, rowNumber int) (models.InventoryItem, bool) {
	name := strings.TrimSpace(cell(row, l.options.NameColumn))
	if name == "" {
		return models.InventoryItem{}, false
	}

	if _, isHeader := l.headers[normalizeLabel(name)]; isHeader {
		return models.InventoryItem{}, false
	}

	price, ok := common.ParsePrice(cell(row, l.options.PriceColumn))
	if !ok {
		l.logger.Debug().
			Int("row", rowNumber).
			Str("name", name).
			Msg("Skipping row without numeric price")
		return models.InventoryItem{}, false
	}

	return models.InventoryItem{Name: name, InternalPrice: price, Row: rowNumber}, true
}

func (l *Loader) readRows(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	case ".xlsx", ".xlsm":
		return readXLSX(path, l.options.Sheet)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse csv: %w", err)
		}
		rows = append(rows, record)
	}

	// Spreadsheet exports often start with a UTF-8 BOM
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}

	return rows, nil
}

func readXLSX(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	if sheet == "" {
		return nil, errors.New("workbook has no sheets")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

func cell(row []string, index int) string {
	if index < 0 || index >= len(row) {
		return ""
	}
	return row[index]
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
