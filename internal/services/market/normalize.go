package market

import (
	"math"
	"strings"

	"github.com/ternarybob/pricewatch/internal/common"
	"github.com/ternarybob/pricewatch/internal/models"
	"github.com/ternarybob/pricewatch/internal/serpapi"
)

// FlagInstallment marks a listing the provider offered with a financing plan
const FlagInstallment = "installment"

// Normalize maps provider results onto RawListing. Missing fields become nil or defaults.
func Normalize(results []serpapi.ShoppingResult) []models.RawListing {
	listings := make([]models.RawListing, 0, len(results))
	for _, r := range results {
		listings = append(listings, normalizeResult(r))
	}
	return listings
}

func normalizeResult(r serpapi.ShoppingResult) models.RawListing {
	listing := models.RawListing{
		Title:        r.Title.String(),
		PriceDisplay: r.Price.String(),
		PriceNumeric: r.ExtractedPrice.Ptr(),
		Seller:       r.Source.String(),
		Link:         r.Link.String(),
		Rating:       r.Rating.Ptr(),
		Condition:    models.ConditionNew,
	}

	if listing.PriceNumeric == nil {
		if value, ok := common.ParsePrice(listing.PriceDisplay); ok {
			listing.PriceNumeric = &value
		}
	}

	if listing.Link == "" {
		listing.Link = r.ProductLink.String()
	}

	if r.Reviews.Valid && r.Reviews.Value >= 0 {
		reviews := int(math.Round(r.Reviews.Value))
		listing.ReviewCount = &reviews
	}

	if condition := firstNonEmpty(r.SecondHandCondition.String(), r.Condition.String()); condition != "" {
		listing.Condition = strings.ToLower(condition)
	}

	listing.Flags = append(listing.Flags, r.Extensions...)
	if tag := r.Tag.String(); tag != "" {
		listing.Flags = append(listing.Flags, tag)
	}
	if delivery := r.Delivery.String(); delivery != "" {
		listing.Flags = append(listing.Flags, delivery)
	}
	if r.HasInstallment() {
		listing.Flags = append(listing.Flags, FlagInstallment)
	}

	return listing
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
