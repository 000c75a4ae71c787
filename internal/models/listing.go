package models

// ConditionNew is the default listing condition when the provider does not report one
const ConditionNew = "new"

// RawListing is a single seller offer returned by the shopping-search provider.
// Optional numeric fields are nil when the provider omitted them.
type RawListing struct {
	Title        string   `json:"title"`
	PriceDisplay string   `json:"price_display"`
	PriceNumeric *float64 `json:"price_numeric"`
	Seller       string   `json:"seller"`
	Link         string   `json:"link"`
	ReviewCount  *int     `json:"review_count"`
	Rating       *float64 `json:"rating"`
	Condition    string   `json:"condition"`
	Flags        []string `json:"flags,omitempty"` // Provider tags, extensions and installment markers
}

// HasPrice reports whether the listing carries a usable positive price
func (l RawListing) HasPrice() bool {
	return l.PriceNumeric != nil && *l.PriceNumeric > 0
}
