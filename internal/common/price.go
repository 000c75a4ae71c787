package common

import (
	"strconv"
	"strings"
	"unicode"
)

// ParsePrice extracts a numeric amount from a display price such as "₹70,000",
// "$1,299.99" or "Rs. 450". Currency symbols, letters, whitespace and thousand
// separators are dropped. Returns false when no single number remains.
func ParsePrice(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}

	var b strings.Builder
	for _, r := range raw {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '.' || r == '-':
			b.WriteRune(r)
		case r == ',' || unicode.IsSpace(r):
			// thousand separators and padding
		}
	}

	// "Rs." and similar prefixes leave a leading dot behind
	cleaned := strings.TrimLeft(b.String(), ".")
	if cleaned == "" {
		return 0, false
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
