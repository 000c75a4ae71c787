package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pricewatch/internal/common"
	"github.com/ternarybob/pricewatch/internal/models"
	"github.com/ternarybob/pricewatch/internal/services/inventory"
	"github.com/ternarybob/pricewatch/internal/services/market"
	"github.com/ternarybob/pricewatch/internal/services/report"
)

// fakeFetcher returns canned results per product
type fakeFetcher struct {
	mu      sync.Mutex
	results map[string]market.FetchResult
	calls   []string
	onFetch func(product string)
	jitter  bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, product string) market.FetchResult {
	f.mu.Lock()
	f.calls = append(f.calls, product)
	hook := f.onFetch
	f.mu.Unlock()

	if hook != nil {
		hook(product)
	}
	if f.jitter {
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
	}

	if r, ok := f.results[product]; ok {
		r.Product = product
		return r
	}
	return market.FetchResult{Product: product}
}

// lines collects progress output
type lines struct {
	mu  sync.Mutex
	out []string
}

func (l *lines) Printf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = append(l.out, fmt.Sprintf(format, args...))
}

func (l *lines) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.out, "\n")
}

func priced(title string, price float64, flags ...string) models.RawListing {
	return models.RawListing{Title: title, PriceNumeric: &price, Condition: models.ConditionNew, Flags: flags}
}

type fixture struct {
	config    *common.Config
	reportDir string
}

func newFixture(t *testing.T, inventoryCSV string) *fixture {
	t.Helper()
	dir := t.TempDir()

	config := common.NewDefaultConfig()
	config.Inventory.Path = filepath.Join(dir, "book.csv")
	config.Inventory.NameColumn = 0
	config.Inventory.PriceColumn = 1
	config.Report.Dir = filepath.Join(dir, "thesis")
	require.NoError(t, os.WriteFile(config.Inventory.Path, []byte(inventoryCSV), 0644))

	return &fixture{config: config, reportDir: config.Report.Dir}
}

func (f *fixture) controller(fetcher MarketFetcher) *Controller {
	logger := arbor.NewLogger()
	loader := inventory.NewLoader(inventory.OptionsFromConfig(f.config.Inventory), logger)
	writer := report.NewWriter(f.config.Report, logger)
	return NewController(loader, fetcher, writer, f.config, logger)
}

func (f *fixture) reportFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.reportDir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRun_EndToEnd(t *testing.T) {
	f := newFixture(t, "product name,price\nWidget A,100\nWidget B,50\n")
	fetcher := &fakeFetcher{results: map[string]market.FetchResult{
		"Widget A": {Listings: []models.RawListing{
			priced("Widget A", 90),
			priced("Widget A", 95),
			priced("Widget A", 30, "No Cost EMI"),
		}},
		"Widget B": {},
	}}

	progress := &lines{}
	result, err := f.controller(fetcher).Run(context.Background(), progress)
	require.NoError(t, err)

	require.Len(t, result.Verdicts, 2)
	a, b := result.Verdicts[0], result.Verdicts[1]

	assert.Equal(t, "Widget A", a.ProductName)
	require.NotNil(t, a.MarketAverage)
	assert.InDelta(t, 92.5, *a.MarketAverage, 0.0001)
	// 100 is above the 92.5 average
	assert.Equal(t, models.PriceStatusOverpriced, a.Status)

	assert.Equal(t, "Widget B", b.ProductName)
	assert.Equal(t, models.PriceStatusIndeterminate, b.Status)
	assert.Nil(t, b.MarketAverage)

	require.NotEmpty(t, result.ReportPath)
	data, err := os.ReadFile(result.ReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Widget A,100,92.5,Overpriced,,")
	assert.Contains(t, string(data), "Widget B,50,,Indeterminate,,")

	out := progress.String()
	assert.Contains(t, out, "Loaded 2 products")
	assert.Contains(t, out, "[1/2] Widget A: 3 listings, 2 kept (rejected: 1 installment or rental offer)")
	assert.Contains(t, out, "Report written to")
}

func TestRun_FetchFailureYieldsIndeterminate(t *testing.T) {
	f := newFixture(t, "Widget A,100\nWidget B,50\nWidget C,10\n")
	fetcher := &fakeFetcher{results: map[string]market.FetchResult{
		"Widget A": {Err: &market.FetchFailedError{Product: "Widget A", Attempts: 5, LastErr: errors.New("503")}},
		"Widget B": {Listings: []models.RawListing{priced("b", 40)}},
	}}

	result, err := f.controller(fetcher).Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, result.Verdicts, 3)

	assert.Equal(t, models.PriceStatusIndeterminate, result.Verdicts[0].Status)
	assert.Contains(t, result.Verdicts[0].FetchError, "after 5 attempt(s)")
	assert.Equal(t, models.PriceStatusOverpriced, result.Verdicts[1].Status)
	assert.Equal(t, models.PriceStatusIndeterminate, result.Verdicts[2].Status)
	assert.Equal(t, []string{"Widget A", "Widget B", "Widget C"}, fetcher.calls)
}

func TestRun_ConcurrentFetchKeepsCatalogOrder(t *testing.T) {
	var csv strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&csv, "Item %02d,%d\n", i, 10+i)
	}
	f := newFixture(t, csv.String())
	f.config.Pipeline.FetchConcurrency = 4

	result, err := f.controller(&fakeFetcher{jitter: true}).Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, result.Verdicts, 20)
	for i, v := range result.Verdicts {
		assert.Equal(t, fmt.Sprintf("Item %02d", i), v.ProductName)
	}
}

func TestRun_InventoryFailureIsFatal(t *testing.T) {
	f := newFixture(t, "")
	f.config.Inventory.Path = filepath.Join(t.TempDir(), "missing.csv")

	result, err := f.controller(&fakeFetcher{}).Run(context.Background(), nil)
	require.Error(t, err)
	assert.Nil(t, result)

	var unreadable *inventory.SourceUnreadableError
	assert.True(t, errors.As(err, &unreadable))
	assert.Empty(t, f.reportFiles(t))
}

func TestRun_WriteFailureIsFatal(t *testing.T) {
	f := newFixture(t, "Widget A,100\n")
	require.NoError(t, os.WriteFile(f.reportDir, []byte("not a dir"), 0644))

	_, err := f.controller(&fakeFetcher{}).Run(context.Background(), nil)
	require.Error(t, err)

	var failed *report.WriteFailedError
	assert.True(t, errors.As(err, &failed))
}

func TestRun_CancellationWithoutPartialReport(t *testing.T) {
	f := newFixture(t, "Widget A,100\nWidget B,50\nWidget C,10\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fetcher := &fakeFetcher{onFetch: func(product string) {
		if product == "Widget B" {
			cancel()
		}
	}}

	result, err := f.controller(fetcher).Run(ctx, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.True(t, result.Cancelled)
	assert.Empty(t, result.ReportPath)
	assert.Empty(t, f.reportFiles(t))
	assert.NotContains(t, fetcher.calls, "Widget C")
}

func TestRun_CancellationWithPartialReport(t *testing.T) {
	f := newFixture(t, "Widget A,100\nWidget B,50\nWidget C,10\n")
	f.config.Pipeline.WritePartialOnCancel = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fetcher := &fakeFetcher{
		results: map[string]market.FetchResult{"Widget A": {Listings: []models.RawListing{priced("a", 120)}}},
		onFetch: func(product string) {
			if product == "Widget B" {
				cancel()
			}
		},
	}

	result, err := f.controller(fetcher).Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	require.NotEmpty(t, result.ReportPath)

	require.Len(t, result.Verdicts, 3)
	assert.Equal(t, models.PriceStatusUnderpriced, result.Verdicts[0].Status)
	assert.Equal(t, models.PriceStatusIndeterminate, result.Verdicts[1].Status)
	assert.Equal(t, models.PriceStatusIndeterminate, result.Verdicts[2].Status)
	assert.Len(t, f.reportFiles(t), 1)
}

func TestReconcileProduct(t *testing.T) {
	f := newFixture(t, "")
	fetcher := &fakeFetcher{results: map[string]market.FetchResult{
		"Widget A": {Listings: []models.RawListing{priced("a", 100), priced("b", 100)}},
	}}

	verdict := f.controller(fetcher).ReconcileProduct(context.Background(), models.InventoryItem{Name: "Widget A", InternalPrice: 100})

	assert.Equal(t, models.PriceStatusAtMarket, verdict.Status)
	assert.Equal(t, 2, verdict.ListingCount)
}
