package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pricewatch/internal/models"
	"github.com/ternarybob/pricewatch/internal/services/market"
	"github.com/ternarybob/pricewatch/internal/services/pipeline"
	"github.com/ternarybob/pricewatch/internal/services/pricing"
)

// ListingFetcher fetches raw listings for a product
type ListingFetcher interface {
	Fetch(ctx context.Context, product string) market.FetchResult
}

// ListingFilter drops implausible listings
type ListingFilter interface {
	Apply(listings []models.RawListing) pricing.FilterResult
}

// InventoryLoader reads the catalog
type InventoryLoader interface {
	Load(ctx context.Context, path string) ([]models.InventoryItem, error)
}

// Reconciler runs single-product and full reconciliations
type Reconciler interface {
	ReconcileProduct(ctx context.Context, item models.InventoryItem) models.ProductVerdict
	Run(ctx context.Context, progress pipeline.Progress) (*pipeline.Result, error)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// handleTrackPrice implements the track_price tool
func handleTrackPrice(fetcher ListingFetcher, filter ListingFilter, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		product, err := request.RequireString("product")
		if err != nil || product == "" {
			return textResult("Error: product parameter is required"), nil
		}

		result := fetcher.Fetch(ctx, product)
		if result.Failed() {
			logger.Warn().Err(result.Err).Str("product", product).Msg("Market fetch failed")
			return textResult(fmt.Sprintf("Market fetch failed for %q: %v", product, result.Err)), nil
		}

		return textResult(formatTrackedListings(product, filter.Apply(result.Listings))), nil
	}
}

// handleLoadInventory implements the load_inventory tool
func handleLoadInventory(loader InventoryLoader, defaultPath string, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := request.GetString("path", defaultPath)
		limit := request.GetInt("limit", 50)

		items, err := loader.Load(ctx, path)
		if err != nil {
			logger.Error().Err(err).Str("path", path).Msg("Inventory load failed")
			return textResult(fmt.Sprintf("Inventory load failed: %v", err)), nil
		}

		return textResult(formatInventory(path, items, limit)), nil
	}
}

// handleReconcileProduct implements the reconcile_product tool
func handleReconcileProduct(reconciler Reconciler, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		product, err := request.RequireString("product")
		if err != nil || product == "" {
			return textResult("Error: product parameter is required"), nil
		}
		price, err := request.RequireFloat("internal_price")
		if err != nil || price <= 0 {
			return textResult("Error: internal_price must be a positive number"), nil
		}

		verdict := reconciler.ReconcileProduct(ctx, models.InventoryItem{Name: product, InternalPrice: price})
		logger.Debug().Str("product", product).Str("status", string(verdict.Status)).Msg("Product reconciled")

		return textResult(formatVerdict(verdict)), nil
	}
}

// handleRunReconciliation implements the run_reconciliation tool
func handleRunReconciliation(reconciler Reconciler, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log := &progressLog{}
		result, err := reconciler.Run(ctx, log)
		if err != nil {
			logger.Error().Err(err).Msg("Reconciliation failed")
			return textResult(formatRunFailure(err, log.Lines())), nil
		}

		return textResult(formatRunSummary(result)), nil
	}
}

// progressLog collects progress lines for the failure report. Pipeline workers
// write to it concurrently.
type progressLog struct {
	mu    sync.Mutex
	lines []string
}

func (p *progressLog) Printf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	p.mu.Lock()
	p.lines = append(p.lines, line)
	p.mu.Unlock()
}

// Lines returns a copy of the collected lines
func (p *progressLog) Lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lines...)
}
