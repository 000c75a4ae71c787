// Package pricing filters market listings and classifies internal prices against them.
package pricing

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ternarybob/pricewatch/internal/common"
	"github.com/ternarybob/pricewatch/internal/models"
)

// Rejection reasons
const (
	ReasonNoPrice   = "missing or non-positive price"
	ReasonNonNew    = "non-new condition"
	ReasonFinancing = "installment or rental offer"
	ReasonOutlier   = "price outlier"
)

// Rejection records a listing removed by the filter
type Rejection struct {
	Listing models.RawListing
	Reason  string
	Detail  string
}

// FilterResult holds the surviving listings in input order plus the rejected ones
type FilterResult struct {
	Kept     []models.RawListing
	Rejected []Rejection
}

// Filter applies the plausibility rules to the listings of one product
type Filter struct {
	outlierFactor float64
	nonNew        []*regexp.Regexp
	financing     []*regexp.Regexp
}

// NewFilter builds a filter from the [filter] section
func NewFilter(config common.FilterConfig) *Filter {
	return &Filter{
		outlierFactor: config.OutlierFactor,
		nonNew:        compileTerms(config.NonNewConditions),
		financing:     compileTerms(config.FinancingTerms),
	}
}

// Apply runs the rules in order: price presence, condition/financing, then outliers
// against the median of what survived the first two rules.
func (f *Filter) Apply(listings []models.RawListing) FilterResult {
	var result FilterResult
	candidates := make([]models.RawListing, 0, len(listings))

	for _, l := range listings {
		if !l.HasPrice() {
			result.Rejected = append(result.Rejected, Rejection{Listing: l, Reason: ReasonNoPrice})
			continue
		}
		if term, ok := f.nonNewTerm(l); ok {
			result.Rejected = append(result.Rejected, Rejection{Listing: l, Reason: ReasonNonNew, Detail: term})
			continue
		}
		if term, ok := matchAny(f.financing, listingText(l)); ok {
			result.Rejected = append(result.Rejected, Rejection{Listing: l, Reason: ReasonFinancing, Detail: term})
			continue
		}
		candidates = append(candidates, l)
	}

	if f.outlierFactor <= 1 || len(candidates) == 0 {
		result.Kept = candidates
		return result
	}

	median := medianPrice(candidates)
	upper := median * f.outlierFactor
	lower := median / f.outlierFactor

	for _, l := range candidates {
		p := *l.PriceNumeric
		if p > upper || p < lower {
			result.Rejected = append(result.Rejected, Rejection{
				Listing: l,
				Reason:  ReasonOutlier,
				Detail:  fmt.Sprintf("%.2f outside [%.2f, %.2f]", p, lower, upper),
			})
			continue
		}
		result.Kept = append(result.Kept, l)
	}

	return result
}

func (f *Filter) nonNewTerm(l models.RawListing) (string, bool) {
	if l.Condition != "" && l.Condition != models.ConditionNew {
		if term, ok := matchAny(f.nonNew, l.Condition); ok {
			return term, true
		}
	}
	return matchAny(f.nonNew, l.Title+" "+strings.Join(l.Flags, " "))
}

func listingText(l models.RawListing) string {
	return strings.Join(append([]string{l.Title, l.PriceDisplay}, l.Flags...), " ")
}

// compileTerms builds case-insensitive matchers; alphabetic term edges must fall on word
// boundaries so "emi" does not match "premium".
func compileTerms(terms []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		pattern := regexp.QuoteMeta(strings.ToLower(term))
		if isWordByte(term[0]) {
			pattern = `\b` + pattern
		}
		if isWordByte(term[len(term)-1]) {
			pattern += `\b`
		}
		patterns = append(patterns, regexp.MustCompile(`(?i)`+pattern))
	}
	return patterns
}

func matchAny(patterns []*regexp.Regexp, text string) (string, bool) {
	for _, p := range patterns {
		if m := p.FindString(text); m != "" {
			return strings.ToLower(m), true
		}
	}
	return "", false
}

func isWordByte(b byte) bool {
	return b == '_' || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}

func medianPrice(listings []models.RawListing) float64 {
	prices := make([]float64, len(listings))
	for i, l := range listings {
		prices[i] = *l.PriceNumeric
	}
	sort.Float64s(prices)

	mid := len(prices) / 2
	if len(prices)%2 == 0 {
		return (prices[mid-1] + prices[mid]) / 2
	}
	return prices[mid]
}
