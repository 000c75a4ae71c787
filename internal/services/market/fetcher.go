// Package market fetches and normalizes live shopping listings for inventory products.
package market

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pricewatch/internal/common"
	"github.com/ternarybob/pricewatch/internal/models"
	"github.com/ternarybob/pricewatch/internal/serpapi"
)

// Searcher is the provider call used by the Fetcher
type Searcher interface {
	SearchShopping(ctx context.Context, query serpapi.Query) (*serpapi.SearchResponse, error)
}

// Pacer spaces provider calls. A Searcher that also implements Pacer is waited on
// before each attempt, outside the attempt timeout.
type Pacer interface {
	Wait(ctx context.Context) error
}

// FetchFailedError is the per-product outcome when the provider could not be queried
type FetchFailedError struct {
	Product  string
	Attempts int
	LastErr  error
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetch failed for %q after %d attempt(s): %v", e.Product, e.Attempts, e.LastErr)
}

func (e *FetchFailedError) Unwrap() error {
	return e.LastErr
}

// FetchResult carries the listings for one product. Err is a *FetchFailedError or nil;
// an empty Listings slice with a nil Err is a valid outcome.
type FetchResult struct {
	Product  string
	Listings []models.RawListing
	Attempts int
	Err      error
}

// Failed reports whether the fetch produced no data because of an error
func (r FetchResult) Failed() bool {
	return r.Err != nil
}

// Fetcher queries the provider for one product with retry/backoff
type Fetcher struct {
	searcher       Searcher
	pacer          Pacer
	query          serpapi.Query
	retry          *RetryPolicy
	attemptTimeout time.Duration
	sleep          SleepFunc
	logger         arbor.ILogger
}

// FetcherOption configures the Fetcher
type FetcherOption func(*Fetcher)

// WithSleep replaces the backoff wait, used by tests to observe delays
func WithSleep(sleep SleepFunc) FetcherOption {
	return func(f *Fetcher) {
		f.sleep = sleep
	}
}

// WithRetryPolicy overrides the policy built from configuration
func WithRetryPolicy(policy *RetryPolicy) FetcherOption {
	return func(f *Fetcher) {
		f.retry = policy
	}
}

// NewFetcher creates a Fetcher from the [provider] and [retry] sections
func NewFetcher(searcher Searcher, config *common.Config, logger arbor.ILogger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		searcher: searcher,
		query: serpapi.Query{
			Location:     config.Provider.Location,
			GoogleDomain: config.Provider.GoogleDomain,
			Language:     config.Provider.Language,
			Country:      config.Provider.Country,
			SortBy:       config.Provider.SortBy,
			Num:          config.Provider.ResultLimit,
		},
		retry:          NewRetryPolicyFromConfig(config.Retry),
		attemptTimeout: common.MustDuration(config.Provider.RequestTimeout, 30*time.Second),
		sleep:          sleepContext,
		logger:         logger,
	}

	if pacer, ok := searcher.(Pacer); ok {
		f.pacer = pacer
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch queries the provider for product. It never returns a Go error: failures are
// reported through FetchResult.Err so callers can continue with other products.
func (f *Fetcher) Fetch(ctx context.Context, product string) FetchResult {
	query := f.query
	query.Q = product

	var response *serpapi.SearchResponse
	attempts, err := f.retry.Execute(ctx, f.logger, f.sleep, func(ctx context.Context, attempt int) error {
		if f.pacer != nil {
			if err := f.pacer.Wait(ctx); err != nil {
				return err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, f.attemptTimeout)
		defer cancel()

		resp, err := f.searcher.SearchShopping(attemptCtx, query)
		if err != nil {
			f.logger.Debug().
				Str("product", product).
				Int("attempt", attempt).
				Err(err).
				Msg("Provider query failed")
			return err
		}
		response = resp
		return nil
	})

	result := FetchResult{Product: product, Attempts: attempts}
	if err != nil {
		result.Err = &FetchFailedError{Product: product, Attempts: attempts, LastErr: err}
		f.logger.Warn().
			Str("product", product).
			Int("attempts", attempts).
			Err(err).
			Msg("Market fetch failed")
		return result
	}

	if response != nil {
		result.Listings = Normalize(response.ShoppingResults)
	}

	f.logger.Debug().
		Str("product", product).
		Int("listings", len(result.Listings)).
		Int("attempts", attempts).
		Msg("Market fetch complete")

	return result
}
