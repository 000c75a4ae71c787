// Package report persists reconciliation verdicts as csv, xlsx or pdf files.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pricewatch/internal/common"
	"github.com/ternarybob/pricewatch/internal/models"
)

// TimestampLayout is the filename timestamp format (YYYYMMDD_HHMMSS)
const TimestampLayout = "20060102_150405"

// maxSuffix bounds the _1, _2, ... collision suffixes tried for one timestamp
const maxSuffix = 1000

// Columns is the report column order, matching the ProductVerdict fields
var Columns = []string{"product_name", "internal_price", "market_average", "status", "max_reviews", "avg_rating"}

// WriteFailedError is returned when the report could not be persisted
type WriteFailedError struct {
	Path string
	Err  error
}

func (e *WriteFailedError) Error() string {
	return fmt.Sprintf("failed to write report %s: %v", e.Path, e.Err)
}

func (e *WriteFailedError) Unwrap() error {
	return e.Err
}

// encoder serializes verdicts into an open file
type encoder func(w io.Writer, verdicts []models.ProductVerdict) error

var encoders = map[string]encoder{
	"csv":  encodeCSV,
	"xlsx": encodeXLSX,
	"pdf":  encodePDF,
}

// Writer writes timestamped, never-overwritten report files
type Writer struct {
	dir      string
	baseName string
	format   string
	now      func() time.Time
	logger   arbor.ILogger
}

// WriterOption configures the Writer
type WriterOption func(*Writer)

// WithClock sets the time source used for filenames
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) {
		w.now = now
	}
}

// NewWriter creates a report writer from the [report] section
func NewWriter(config common.ReportConfig, logger arbor.ILogger, opts ...WriterOption) *Writer {
	w := &Writer{
		dir:      config.Dir,
		baseName: config.BaseName,
		format:   strings.ToLower(config.Format),
		now:      time.Now,
		logger:   logger,
	}
	if w.format == "" {
		w.format = "csv"
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write persists verdicts in order and returns the path of the new file
func (w *Writer) Write(ctx context.Context, verdicts []models.ProductVerdict) (string, error) {
	encode, ok := encoders[w.format]
	if !ok {
		return "", &WriteFailedError{Path: w.dir, Err: fmt.Errorf("unsupported report format %q", w.format)}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", &WriteFailedError{Path: w.dir, Err: err}
	}

	f, path, err := w.createExclusive()
	if err != nil {
		return "", &WriteFailedError{Path: path, Err: err}
	}

	if err := encode(f, verdicts); err != nil {
		f.Close()
		os.Remove(path)
		return "", &WriteFailedError{Path: path, Err: err}
	}

	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", &WriteFailedError{Path: path, Err: err}
	}

	w.logger.Info().
		Str("path", path).
		Str("format", w.format).
		Int("rows", len(verdicts)).
		Msg("Report written")

	return path, nil
}

// createExclusive opens a new file for the current timestamp, adding _1, _2, ...
// suffixes when the name is taken. Existing files are never truncated.
func (w *Writer) createExclusive() (*os.File, string, error) {
	stem := fmt.Sprintf("%s_%s", w.baseName, w.now().Format(TimestampLayout))

	var path string
	for i := 0; i <= maxSuffix; i++ {
		name := stem
		if i > 0 {
			name = fmt.Sprintf("%s_%d", stem, i)
		}
		path = filepath.Join(w.dir, name+"."+w.format)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, path, err
		}
	}

	return nil, path, fmt.Errorf("no free filename after %d attempts", maxSuffix+1)
}

// Row renders one verdict in column order; nil values become empty cells
func Row(v models.ProductVerdict) []string {
	return []string{
		v.ProductName,
		formatFloat(&v.InternalPrice),
		formatFloat(v.MarketAverage),
		string(v.Status),
		formatInt(v.MaxReviews),
		formatFloat(v.AvgRating),
	}
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
