package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/pricewatch/internal/common"
	"github.com/ternarybob/pricewatch/internal/serpapi"
	"github.com/ternarybob/pricewatch/internal/services/inventory"
	"github.com/ternarybob/pricewatch/internal/services/market"
	"github.com/ternarybob/pricewatch/internal/services/pipeline"
	"github.com/ternarybob/pricewatch/internal/services/pricing"
	"github.com/ternarybob/pricewatch/internal/services/report"
)

func main() {
	var paths []string
	if configPath := os.Getenv("PRICEWATCH_CONFIG"); configPath != "" {
		paths = append(paths, configPath)
	} else if _, err := os.Stat("pricewatch.toml"); err == nil {
		paths = append(paths, "pricewatch.toml")
	}

	config, err := common.LoadFromFiles(paths...)
	if err == nil {
		err = config.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Minimal logging to avoid cluttering MCP stdio
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn")

	provider := config.Provider
	client := serpapi.NewClient(provider.APIKey,
		serpapi.WithBaseURL(provider.BaseURL),
		serpapi.WithEngine(provider.Engine),
		serpapi.WithMinInterval(common.MustDuration(provider.MinInterval, serpapi.DefaultMinInterval)),
		serpapi.WithLogger(logger),
	)

	fetcher := market.NewFetcher(client, config, logger)
	loader := inventory.NewLoader(inventory.OptionsFromConfig(config.Inventory), logger)
	writer := report.NewWriter(config.Report, logger)
	controller := pipeline.NewController(loader, fetcher, writer, config, logger)
	filter := pricing.NewFilter(config.Filter)

	mcpServer := server.NewMCPServer(
		"pricewatch",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTool(createTrackPriceTool(), handleTrackPrice(fetcher, filter, logger))
	mcpServer.AddTool(createLoadInventoryTool(), handleLoadInventory(loader, config.Inventory.Path, logger))
	mcpServer.AddTool(createReconcileProductTool(), handleReconcileProduct(controller, logger))
	mcpServer.AddTool(createRunReconciliationTool(), handleRunReconciliation(controller, logger))

	// Blocks on stdio
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Error().Err(err).Msg("MCP server failed")
		os.Exit(1)
	}
}
