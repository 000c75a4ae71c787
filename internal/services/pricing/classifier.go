package pricing

import (
	"math"

	"github.com/ternarybob/pricewatch/internal/common"
	"github.com/ternarybob/pricewatch/internal/models"
)

// Classifier aggregates surviving listings and classifies the internal price
type Classifier struct {
	tolerancePercent float64
}

// NewClassifier creates a classifier from the [classifier] section
func NewClassifier(config common.ClassifierConfig) *Classifier {
	return &Classifier{tolerancePercent: config.TolerancePercent}
}

// Classify builds the verdict for item from its filtered listings
func (c *Classifier) Classify(item models.InventoryItem, listings []models.RawListing) models.ProductVerdict {
	verdict := models.IndeterminateVerdict(item)
	verdict.ListingCount = len(listings)

	if len(listings) == 0 {
		return verdict
	}

	var priceSum, ratingSum float64
	var ratingCount int
	var maxReviews *int

	for _, l := range listings {
		priceSum += *l.PriceNumeric

		if l.Rating != nil {
			ratingSum += *l.Rating
			ratingCount++
		}
		if l.ReviewCount != nil && (maxReviews == nil || *l.ReviewCount > *maxReviews) {
			reviews := *l.ReviewCount
			maxReviews = &reviews
		}
	}

	average := priceSum / float64(len(listings))
	verdict.MarketAverage = &average
	verdict.MaxReviews = maxReviews
	if ratingCount > 0 {
		avgRating := ratingSum / float64(ratingCount)
		verdict.AvgRating = &avgRating
	}
	verdict.Status = ClassifyPrice(item.InternalPrice, verdict.MarketAverage, c.tolerancePercent)

	return verdict
}

// ClassifyPrice compares an internal price with the market average. A zero tolerance
// means strict comparison; otherwise prices within tolerance percent of the average
// are AtMarket.
func ClassifyPrice(internal float64, average *float64, tolerancePercent float64) models.PriceStatus {
	if average == nil {
		return models.PriceStatusIndeterminate
	}

	if tolerancePercent > 0 && math.Abs(internal-*average) <= *average*tolerancePercent/100 {
		return models.PriceStatusAtMarket
	}

	switch {
	case internal > *average:
		return models.PriceStatusOverpriced
	case internal < *average:
		return models.PriceStatusUnderpriced
	default:
		return models.PriceStatusAtMarket
	}
}
