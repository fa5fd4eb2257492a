package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// PriceScale is the number of implied decimals in a stored price.
	PriceScale int32 = 18
	// VolatilityScale is the number of implied decimals in a volatility index.
	VolatilityScale int32 = 8
)

// ScaleUp converts a decimal amount into an integer with exp implied decimals,
// truncating any remaining fraction.
func ScaleUp(d decimal.Decimal, exp int32) *big.Int {
	return d.Shift(exp).BigInt()
}

// ParseScaled parses a human-readable decimal ("1.25") into a scaled integer.
func ParseScaled(s string, exp int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("parsing decimal %q: %w", s, err)
	}
	return ScaleUp(d, exp), nil
}

// FormatScaled renders a scaled integer as a decimal string with trailing
// zeros stripped. A nil value formats as "0".
func FormatScaled(v *big.Int, exp int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -exp).String()
}

// ParseInteger parses a base-10 integer string such as a raw scaled price.
func ParseInteger(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}
