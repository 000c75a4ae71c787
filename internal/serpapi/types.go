// Package serpapi provides a client for the SerpAPI Google Shopping engine.
// Response entries are decoded field-by-field; a field in an unexpected shape
// decodes to its zero value instead of failing the whole response.
package serpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedResponse is returned when the response body is not a decodable search result
var ErrMalformedResponse = errors.New("malformed provider response")

// noResultsMarker is the provider's error text for an empty (valid) result set
const noResultsMarker = "hasn't returned any results"

// Query holds the parameters of one shopping search
type Query struct {
	Q            string
	Location     string
	GoogleDomain string
	Language     string // hl
	Country      string // gl
	SortBy       string
	Num          int
}

// SearchResponse is the subset of the provider response used by the fetcher
type SearchResponse struct {
	SearchMetadata  SearchMetadata   `json:"search_metadata"`
	ShoppingResults []ShoppingResult `json:"shopping_results"`
	Error           string           `json:"error,omitempty"`
}

type SearchMetadata struct {
	ID     FlexString `json:"id"`
	Status FlexString `json:"status"`
}

// ShoppingResult is one seller offer
type ShoppingResult struct {
	Position            FlexFloat       `json:"position"`
	Title               FlexString      `json:"title"`
	Link                FlexString      `json:"link"`
	ProductLink         FlexString      `json:"product_link"`
	Source              FlexString      `json:"source"`
	Price               FlexString      `json:"price"`
	ExtractedPrice      FlexFloat       `json:"extracted_price"`
	Rating              FlexFloat       `json:"rating"`
	Reviews             FlexFloat       `json:"reviews"`
	SecondHandCondition FlexString      `json:"second_hand_condition"`
	Condition           FlexString      `json:"condition"`
	Extensions          FlexStrings     `json:"extensions"`
	Tag                 FlexString      `json:"tag"`
	Delivery            FlexString      `json:"delivery"`
	Installment         json.RawMessage `json:"installment,omitempty"`
}

// HasInstallment reports whether the provider attached a financing offer to the result
func (r ShoppingResult) HasInstallment() bool {
	trimmed := bytes.TrimSpace(r.Installment)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// FlexString decodes strings and numbers; any other shape is treated as absent
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = FlexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		*s = FlexString(num.String())
		return nil
	}
	*s = ""
	return nil
}

func (s FlexString) String() string {
	return strings.TrimSpace(string(s))
}

// FlexFloat decodes numbers and numeric strings; Valid is false when the value is absent or unusable
type FlexFloat struct {
	Value float64
	Valid bool
}

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	*f = FlexFloat{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		f.Value, f.Valid = num, true
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		cleaned := strings.ReplaceAll(strings.TrimSpace(str), ",", "")
		if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
			f.Value, f.Valid = parsed, true
		}
	}
	return nil
}

// Ptr returns the value as a pointer, nil when absent
func (f FlexFloat) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// FlexStrings decodes a list of strings or a single string
type FlexStrings []string

func (s *FlexStrings) UnmarshalJSON(data []byte) error {
	*s = nil

	var list []FlexString
	if err := json.Unmarshal(data, &list); err == nil {
		for _, item := range list {
			if v := item.String(); v != "" {
				*s = append(*s, v)
			}
		}
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil && strings.TrimSpace(single) != "" {
		*s = FlexStrings{strings.TrimSpace(single)}
	}
	return nil
}

// APIError represents a non-success answer from the provider
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("SerpAPI error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// RateLimitError is returned when the local pacing limiter could not grant a slot
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("SerpAPI pacing wait aborted: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}
