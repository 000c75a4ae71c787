package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ternarybob/pricewatch/internal/models"
	"github.com/ternarybob/pricewatch/internal/services/pipeline"
	"github.com/ternarybob/pricewatch/internal/services/pricing"
)

// formatTrackedListings formats kept and rejected listings as markdown
func formatTrackedListings(product string, filtered pricing.FilterResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Market listings for \"%s\" (%d kept, %d rejected)\n\n", product, len(filtered.Kept), len(filtered.Rejected)))

	if len(filtered.Kept) == 0 {
		sb.WriteString("No plausible listings found.\n")
	} else {
		sb.WriteString("| Title | Price | Seller | Reviews | Rating |\n")
		sb.WriteString("|---|---|---|---|---|\n")
		for _, l := range filtered.Kept {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
				escapeCell(l.Title), formatOptionalFloat(l.PriceNumeric), escapeCell(l.Seller),
				formatOptionalInt(l.ReviewCount), formatOptionalFloat(l.Rating)))
		}
	}

	if len(filtered.Rejected) > 0 {
		sb.WriteString("\n### Rejected\n")
		for _, r := range filtered.Rejected {
			sb.WriteString(fmt.Sprintf("- %s: %s", escapeCell(r.Listing.Title), r.Reason))
			if r.Detail != "" {
				sb.WriteString(fmt.Sprintf(" (%s)", r.Detail))
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// formatInventory lists loaded catalog rows as markdown
func formatInventory(path string, items []models.InventoryItem, limit int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Inventory %s (%d products)\n\n", path, len(items)))

	if len(items) == 0 {
		sb.WriteString("No rows with a usable name and price.\n")
		return sb.String()
	}

	sb.WriteString("| Row | Product | Internal price |\n")
	sb.WriteString("|---|---|---|\n")
	for i, item := range items {
		if limit > 0 && i >= limit {
			sb.WriteString(fmt.Sprintf("\n...and %d more\n", len(items)-limit))
			break
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %s |\n", item.Row, escapeCell(item.Name), strconv.FormatFloat(item.InternalPrice, 'f', -1, 64)))
	}

	return sb.String()
}

// formatVerdict formats one product verdict as markdown
func formatVerdict(v models.ProductVerdict) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s: %s\n\n", v.ProductName, v.Status))
	sb.WriteString(fmt.Sprintf("**Internal price:** %s\n", strconv.FormatFloat(v.InternalPrice, 'f', -1, 64)))
	sb.WriteString(fmt.Sprintf("**Market average:** %s\n", orNone(formatOptionalFloat(v.MarketAverage))))
	sb.WriteString(fmt.Sprintf("**Listings used:** %d\n", v.ListingCount))
	sb.WriteString(fmt.Sprintf("**Max reviews:** %s\n", orNone(formatOptionalInt(v.MaxReviews))))
	sb.WriteString(fmt.Sprintf("**Average rating:** %s\n", orNone(formatOptionalFloat(v.AvgRating))))
	if v.FetchError != "" {
		sb.WriteString(fmt.Sprintf("\n**Fetch error:** %s\n", v.FetchError))
	}
	return sb.String()
}

// formatRunSummary formats a finished reconciliation as markdown
func formatRunSummary(result *pipeline.Result) string {
	var sb strings.Builder
	tally := models.StatusTally(result.Verdicts)

	sb.WriteString(fmt.Sprintf("## Reconciliation complete (%d products)\n\n", len(result.Verdicts)))
	sb.WriteString(fmt.Sprintf("**Report:** %s\n\n", result.ReportPath))
	for _, status := range []models.PriceStatus{
		models.PriceStatusOverpriced,
		models.PriceStatusUnderpriced,
		models.PriceStatusAtMarket,
		models.PriceStatusIndeterminate,
	} {
		sb.WriteString(fmt.Sprintf("- %s: %d\n", status, tally[status]))
	}

	if len(result.Verdicts) > 0 {
		sb.WriteString("\n| Product | Internal | Market average | Status |\n")
		sb.WriteString("|---|---|---|---|\n")
		for _, v := range result.Verdicts {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				escapeCell(v.ProductName), strconv.FormatFloat(v.InternalPrice, 'f', -1, 64),
				formatOptionalFloat(v.MarketAverage), v.Status))
		}
	}

	return sb.String()
}

// formatRunFailure reports a fatal run error with its progress trail
func formatRunFailure(err error, lines []string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Reconciliation failed\n\n%v\n", err))
	if len(lines) > 0 {
		sb.WriteString("\n```\n")
		sb.WriteString(strings.Join(lines, "\n"))
		sb.WriteString("\n```\n")
	}
	return sb.String()
}

func formatOptionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func formatOptionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func orNone(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
