package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept when a division has no
// exact decimal representation. Callers carry the residual so that totals
// built from scaled parts stay exact.
const Scale int32 = 18

// CurrencyPlaces is the number of minor-unit digits used when presenting
// quote-currency amounts.
const CurrencyPlaces int32 = 2

// ParseAmount parses a decimal string such as "0.015" or "-20.5".
// Empty strings are rejected rather than read as zero.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// MinAmount returns the smaller of a and b.
func MinAmount(a, b decimal.Decimal) decimal.Decimal {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Prorate returns total × part / whole rounded to Scale digits. When part
// equals whole the total is returned untouched.
func Prorate(total, part, whole decimal.Decimal) decimal.Decimal {
	if part.Equal(whole) {
		return total
	}
	return total.Mul(part).DivRound(whole, Scale)
}

// FormatMoney renders a quote-currency amount rounded to CurrencyPlaces
// with banker's rounding.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixedBank(CurrencyPlaces)
}
