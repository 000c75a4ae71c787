package models

// PriceStatus is the pricing position of an internal price against the market average
type PriceStatus string

const (
	PriceStatusOverpriced    PriceStatus = "Overpriced"
	PriceStatusUnderpriced   PriceStatus = "Underpriced"
	PriceStatusAtMarket      PriceStatus = "AtMarket"
	PriceStatusIndeterminate PriceStatus = "Indeterminate"
)

// ProductVerdict is the reconciliation result for one inventory item.
// Status is always derived from InternalPrice and MarketAverage.
type ProductVerdict struct {
	ProductName   string      `json:"product_name"`
	InternalPrice float64     `json:"internal_price"`
	MarketAverage *float64    `json:"market_average"`
	Status        PriceStatus `json:"status"`
	MaxReviews    *int        `json:"max_reviews"`
	AvgRating     *float64    `json:"avg_rating"`

	// Not part of the report columns
	ListingCount int    `json:"listing_count"`
	FetchError   string `json:"fetch_error,omitempty"`
}

// IndeterminateVerdict builds the verdict used when no market data survived
func IndeterminateVerdict(item InventoryItem) ProductVerdict {
	return ProductVerdict{
		ProductName:   item.Name,
		InternalPrice: item.InternalPrice,
		Status:        PriceStatusIndeterminate,
	}
}

// StatusTally counts verdicts per status
func StatusTally(verdicts []ProductVerdict) map[PriceStatus]int {
	tally := make(map[PriceStatus]int, 4)
	for _, v := range verdicts {
		tally[v.Status]++
	}
	return tally
}
