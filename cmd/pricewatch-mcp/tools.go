package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createTrackPriceTool returns the track_price tool definition
func createTrackPriceTool() mcp.Tool {
	return mcp.NewTool("track_price",
		mcp.WithDescription("Fetch current market listings for a product and show which survive the plausibility filter"),
		mcp.WithString("product",
			mcp.Required(),
			mcp.Description("Product name as it would be searched on Google Shopping"),
		),
	)
}

// createLoadInventoryTool returns the load_inventory tool definition
func createLoadInventoryTool() mcp.Tool {
	return mcp.NewTool("load_inventory",
		mcp.WithDescription("Read the internal catalog (csv or xlsx) and list the products with usable prices"),
		mcp.WithString("path",
			mcp.Description("Catalog path (default: configured inventory path)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum rows to list (default: 50)"),
		),
	)
}

// createReconcileProductTool returns the reconcile_product tool definition
func createReconcileProductTool() mcp.Tool {
	return mcp.NewTool("reconcile_product",
		mcp.WithDescription("Compare one internal price against the current market average"),
		mcp.WithString("product",
			mcp.Required(),
			mcp.Description("Product name"),
		),
		mcp.WithNumber("internal_price",
			mcp.Required(),
			mcp.Description("Internal catalog price"),
		),
	)
}

// createRunReconciliationTool returns the run_reconciliation tool definition
func createRunReconciliationTool() mcp.Tool {
	return mcp.NewTool("run_reconciliation",
		mcp.WithDescription("Reconcile the whole catalog against the market and write a timestamped report"),
	)
}
