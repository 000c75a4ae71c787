package serpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the SerpAPI search endpoint.
	DefaultBaseURL = "https://serpapi.com/search.json"

	// DefaultEngine is the Google Shopping engine identifier.
	DefaultEngine = "google_shopping"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMinInterval is the default spacing between provider calls.
	DefaultMinInterval = 2 * time.Second

	// maxErrorBody bounds how much of a failed response is kept in an APIError.
	maxErrorBody = 512
)

// Client is a SerpAPI Google Shopping client.
type Client struct {
	baseURL    string
	apiKey     string
	engine     string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithEngine overrides the search engine parameter.
func WithEngine(engine string) ClientOption {
	return func(c *Client) {
		if engine != "" {
			c.engine = engine
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMinInterval paces calls so that at most one request starts per interval.
// A non-positive interval disables pacing.
func WithMinInterval(interval time.Duration) ClientOption {
	return func(c *Client) {
		if interval <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// NewClient creates a new SerpAPI client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		engine:  DefaultEngine,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(DefaultMinInterval), 1),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Wait blocks until the pacing limiter grants the next provider call.
// It is kept apart from SearchShopping so a queued caller is not charged against
// the per-request timeout.
func (c *Client) Wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &RateLimitError{Err: err}
	}
	return nil
}

// SearchShopping performs one shopping search without pacing; call Wait first.
// A "no results" answer from the provider is returned as an empty, successful response.
func (c *Client) SearchShopping(ctx context.Context, query Query) (*SearchResponse, error) {
	params := url.Values{}
	params.Set("engine", c.engine)
	params.Set("q", query.Q)
	setIfPresent(params, "location", query.Location)
	setIfPresent(params, "sort_by", query.SortBy)
	setIfPresent(params, "google_domain", query.GoogleDomain)
	setIfPresent(params, "hl", query.Language)
	setIfPresent(params, "gl", query.Country)
	if query.Num > 0 {
		params.Set("num", strconv.Itoa(query.Num))
	}
	params.Set("api_key", c.apiKey)

	reqURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("url", c.baseURL).
			Str("query", query.Q).
			Msg("SerpAPI request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body, resp.StatusCode),
			Endpoint:   c.baseURL,
		}
	}

	return decodeSearchResponse(body, c.baseURL)
}

func decodeSearchResponse(body []byte, endpoint string) (*SearchResponse, error) {
	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if result.Error != "" {
		if strings.Contains(result.Error, noResultsMarker) {
			result.ShoppingResults = nil
			return &result, nil
		}
		return nil, &APIError{
			StatusCode: http.StatusOK,
			Message:    result.Error,
			Endpoint:   endpoint,
		}
	}

	return &result, nil
}

// errorMessage prefers the provider's JSON "error" field over the raw body
func errorMessage(body []byte, status int) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return msg
}

func setIfPresent(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}

// StatusCode extracts the HTTP status from an APIError chain, 0 when absent
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
