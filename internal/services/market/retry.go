package market

import (
	"context"
	"errors"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pricewatch/internal/common"
	"github.com/ternarybob/pricewatch/internal/serpapi"
)

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryPolicy defines retry behavior with deterministic exponential backoff
type RetryPolicy struct {
	MaxAttempts          int
	InitialBackoff       time.Duration
	BackoffMultiplier    float64
	RetryableStatusCodes []int
}

// NewRetryPolicy creates the default provider retry policy: 5 attempts, waits 1s, 7s, 49s, 343s
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       5,
		InitialBackoff:    time.Second,
		BackoffMultiplier: 7,
		RetryableStatusCodes: []int{
			429, // Too Many Requests
			500, // Internal Server Error
			503, // Service Unavailable
			504, // Gateway Timeout
		},
	}
}

// NewRetryPolicyFromConfig builds a policy from the [retry] section
func NewRetryPolicyFromConfig(config common.RetryConfig) *RetryPolicy {
	p := NewRetryPolicy()
	if config.MaxAttempts > 0 {
		p.MaxAttempts = config.MaxAttempts
	}
	p.InitialBackoff = common.MustDuration(config.InitialDelay, p.InitialBackoff)
	if config.Multiplier >= 1 {
		p.BackoffMultiplier = config.Multiplier
	}
	if len(config.RetryableStatusCodes) > 0 {
		p.RetryableStatusCodes = append([]int(nil), config.RetryableStatusCodes...)
	}
	return p
}

// CalculateBackoff returns the wait after the given failed attempt (1-based)
func (p *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(p.InitialBackoff) * math.Pow(p.BackoffMultiplier, float64(attempt-1)))
}

// Delays lists every wait the policy performs when all attempts fail
func (p *RetryPolicy) Delays() []time.Duration {
	if p.MaxAttempts <= 1 {
		return nil
	}
	delays := make([]time.Duration, 0, p.MaxAttempts-1)
	for attempt := 1; attempt < p.MaxAttempts; attempt++ {
		delays = append(delays, p.CalculateBackoff(attempt))
	}
	return delays
}

// IsRetryable reports whether err is transient: a retryable HTTP status, a per-attempt
// timeout or a transport failure. Malformed responses and other statuses are final.
func (p *RetryPolicy) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, serpapi.ErrMalformedResponse) {
		return false
	}

	if status := serpapi.StatusCode(err); status > 0 {
		for _, code := range p.RetryableStatusCodes {
			if status == code {
				return true
			}
		}
		return false
	}

	var rateErr *serpapi.RateLimitError
	if errors.As(err, &rateErr) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}

// Execute runs fn until it succeeds, fails with a non-retryable error, the attempts are
// exhausted or ctx is cancelled. It returns the number of attempts made and the last error.
func (p *RetryPolicy) Execute(ctx context.Context, logger arbor.ILogger, sleep SleepFunc, fn func(ctx context.Context, attempt int) error) (int, error) {
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	attempt := 0

	for attempt < p.MaxAttempts {
		attempt++
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}

		if ctx.Err() != nil {
			return attempt, lastErr
		}

		if !p.IsRetryable(lastErr) {
			logger.Debug().
				Int("attempt", attempt).
				Err(lastErr).
				Msg("Non-retryable error, failing immediately")
			return attempt, lastErr
		}

		if attempt < p.MaxAttempts {
			backoff := p.CalculateBackoff(attempt)
			logger.Debug().
				Int("attempt", attempt).
				Err(lastErr).
				Dur("backoff", backoff).
				Msg("Retrying after backoff")

			if err := sleep(ctx, backoff); err != nil {
				return attempt, lastErr
			}
		}
	}

	logger.Warn().
		Int("max_attempts", p.MaxAttempts).
		Err(lastErr).
		Msg("All retry attempts exhausted")

	return attempt, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
