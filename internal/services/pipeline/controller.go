// Package pipeline sequences one reconciliation run: load the inventory, fetch, filter and
// classify every product in catalog order, then write the report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pricewatch/internal/common"
	"github.com/ternarybob/pricewatch/internal/models"
	"github.com/ternarybob/pricewatch/internal/services/market"
	"github.com/ternarybob/pricewatch/internal/services/pricing"
	"golang.org/x/sync/errgroup"
)

// Phase is a step of the run state machine
type Phase string

const (
	PhaseLoadInventory Phase = "load_inventory"
	PhaseFetch         Phase = "fetch"
	PhaseFilter        Phase = "filter"
	PhaseAggregate     Phase = "aggregate"
	PhaseWriteReport   Phase = "write_report"
	PhaseDone          Phase = "done"
)

// InventoryLoader reads the catalog
type InventoryLoader interface {
	Load(ctx context.Context, path string) ([]models.InventoryItem, error)
}

// MarketFetcher returns listings for one product; failures are carried in the result
type MarketFetcher interface {
	Fetch(ctx context.Context, product string) market.FetchResult
}

// ReportWriter persists the verdicts and returns the report path
type ReportWriter interface {
	Write(ctx context.Context, verdicts []models.ProductVerdict) (string, error)
}

// Progress receives human-readable progress lines
type Progress interface {
	Printf(format string, args ...interface{})
}

type discardProgress struct{}

func (discardProgress) Printf(string, ...interface{}) {}

// Result summarizes a finished run
type Result struct {
	Verdicts   []models.ProductVerdict
	ReportPath string
	Cancelled  bool
}

// Controller runs the reconciliation pipeline
type Controller struct {
	loader               InventoryLoader
	fetcher              MarketFetcher
	filter               *pricing.Filter
	classifier           *pricing.Classifier
	writer               ReportWriter
	inventoryPath        string
	concurrency          int
	writePartialOnCancel bool
	logger               arbor.ILogger
}

// NewController wires the pipeline stages using the [inventory], [filter], [classifier]
// and [pipeline] sections
func NewController(loader InventoryLoader, fetcher MarketFetcher, writer ReportWriter, config *common.Config, logger arbor.ILogger) *Controller {
	concurrency := config.Pipeline.FetchConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Controller{
		loader:               loader,
		fetcher:              fetcher,
		filter:               pricing.NewFilter(config.Filter),
		classifier:           pricing.NewClassifier(config.Classifier),
		writer:               writer,
		inventoryPath:        config.Inventory.Path,
		concurrency:          concurrency,
		writePartialOnCancel: config.Pipeline.WritePartialOnCancel,
		logger:               logger,
	}
}

// Run executes one full reconciliation. Only inventory load and report write failures
// are returned as errors, plus cancellation of ctx. Every loaded item yields exactly one
// verdict in catalog order.
func (c *Controller) Run(ctx context.Context, progress Progress) (*Result, error) {
	if progress == nil {
		progress = discardProgress{}
	}

	c.enter(progress, PhaseLoadInventory)
	progress.Printf("Loading inventory from %s", c.inventoryPath)

	items, err := c.loader.Load(ctx, c.inventoryPath)
	if err != nil {
		progress.Printf("Inventory load failed: %v", err)
		return nil, fmt.Errorf("load inventory: %w", err)
	}
	progress.Printf("Loaded %d products", len(items))

	verdicts, processed := c.reconcileAll(ctx, items, progress)
	result := &Result{Verdicts: verdicts}

	if ctxErr := ctx.Err(); ctxErr != nil {
		result.Cancelled = true
		progress.Printf("Run cancelled after %d of %d products", countTrue(processed), len(items))

		if !c.writePartialOnCancel {
			return result, fmt.Errorf("run cancelled: %w", ctxErr)
		}

		for i, ok := range processed {
			if !ok {
				verdicts[i] = models.IndeterminateVerdict(items[i])
				verdicts[i].FetchError = "not processed: run cancelled"
			}
		}

		// The partial report is written even though ctx is done
		path, err := c.writeReport(context.WithoutCancel(ctx), verdicts, progress)
		if err != nil {
			return result, errors.Join(fmt.Errorf("run cancelled: %w", ctxErr), err)
		}
		result.ReportPath = path
		return result, fmt.Errorf("run cancelled, partial report %s: %w", path, ctxErr)
	}

	path, err := c.writeReport(ctx, verdicts, progress)
	if err != nil {
		return result, err
	}
	result.ReportPath = path

	c.enter(progress, PhaseDone)
	progress.Printf("Done: %s", summarize(verdicts))

	return result, nil
}

// ReconcileProduct runs fetch, filter and classification for a single item
func (c *Controller) ReconcileProduct(ctx context.Context, item models.InventoryItem) models.ProductVerdict {
	verdict, _ := c.reconcileItem(ctx, item, fmt.Sprintf("[%s]", item.Name), discardProgress{})
	return verdict
}

// reconcileAll processes items with a bounded worker pool; results are stored by catalog
// index so completion order never changes the report order.
func (c *Controller) reconcileAll(ctx context.Context, items []models.InventoryItem, progress Progress) ([]models.ProductVerdict, []bool) {
	verdicts := make([]models.ProductVerdict, len(items))
	processed := make([]bool, len(items))

	c.enter(progress, PhaseFetch)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i := range items {
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			prefix := fmt.Sprintf("[%d/%d] %s:", i+1, len(items), items[i].Name)
			verdicts[i], processed[i] = c.reconcileItem(gctx, items[i], prefix, progress)
			return nil
		})
	}

	// Workers never return errors; per-product failures are part of the verdict
	_ = g.Wait()

	return verdicts, processed
}

// reconcileItem returns the verdict and whether the item was fully processed
func (c *Controller) reconcileItem(ctx context.Context, item models.InventoryItem, prefix string, progress Progress) (models.ProductVerdict, bool) {
	progress.Printf("%s fetching market listings", prefix)

	fetched := c.fetcher.Fetch(ctx, item.Name)
	if ctx.Err() != nil {
		return models.IndeterminateVerdict(item), false
	}

	if fetched.Failed() {
		progress.Printf("%s %v", prefix, fetched.Err)
		verdict := models.IndeterminateVerdict(item)
		verdict.FetchError = fetched.Err.Error()
		progress.Printf("%s no market data -> %s", prefix, verdict.Status)
		return verdict, true
	}

	filtered := c.filter.Apply(fetched.Listings)
	progress.Printf("%s %d listings, %d kept%s", prefix, len(fetched.Listings), len(filtered.Kept), rejectionSummary(filtered.Rejected))

	verdict := c.classifier.Classify(item, filtered.Kept)
	if verdict.MarketAverage == nil {
		progress.Printf("%s no plausible listings -> %s", prefix, verdict.Status)
	} else {
		progress.Printf("%s market average %.2f, internal %.2f -> %s", prefix, *verdict.MarketAverage, item.InternalPrice, verdict.Status)
	}

	return verdict, true
}

func (c *Controller) writeReport(ctx context.Context, verdicts []models.ProductVerdict, progress Progress) (string, error) {
	c.enter(progress, PhaseWriteReport)

	path, err := c.writer.Write(ctx, verdicts)
	if err != nil {
		progress.Printf("Report write failed: %v", err)
		return "", fmt.Errorf("write report: %w", err)
	}
	progress.Printf("Report written to %s", path)
	return path, nil
}

func (c *Controller) enter(progress Progress, phase Phase) {
	c.logger.Debug().Str("phase", string(phase)).Msg("Pipeline phase")
	switch phase {
	case PhaseFetch:
		progress.Printf("Phase: fetch, filter and aggregate per product")
	default:
		progress.Printf("Phase: %s", strings.ReplaceAll(string(phase), "_", " "))
	}
}

func rejectionSummary(rejected []pricing.Rejection) string {
	if len(rejected) == 0 {
		return ""
	}
	counts := map[string]int{}
	var order []string
	for _, r := range rejected {
		if counts[r.Reason] == 0 {
			order = append(order, r.Reason)
		}
		counts[r.Reason]++
	}
	parts := make([]string, 0, len(order))
	for _, reason := range order {
		parts = append(parts, fmt.Sprintf("%d %s", counts[reason], reason))
	}
	return " (rejected: " + strings.Join(parts, ", ") + ")"
}

func summarize(verdicts []models.ProductVerdict) string {
	tally := models.StatusTally(verdicts)
	return fmt.Sprintf("%d products, %d overpriced, %d underpriced, %d at market, %d indeterminate",
		len(verdicts),
		tally[models.PriceStatusOverpriced],
		tally[models.PriceStatusUnderpriced],
		tally[models.PriceStatusAtMarket],
		tally[models.PriceStatusIndeterminate])
}

func countTrue(values []bool) int {
	n := 0
	for _, v := range values {
		if v {
			n++
		}
	}
	return n
}
