package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side indicates whether a fill acquired (buy) or disposed of (sell) an asset.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("%w: unknown side %q", ErrInvalidFill, s)
}

// Fill is an executed trade as reported by the exchange. Fees are in the
// account's quote currency.
type Fill struct {
	ID         string
	OrderID    string
	Asset      string
	Side       Side
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Fee        decimal.Decimal
	ExecutedAt time.Time
}

// Validate checks the fill's own fields. Ordering against other fills is
// the matching engine's concern.
func (f Fill) Validate() error {
	switch {
	case f.ID == "":
		return fmt.Errorf("%w: missing fill id", ErrInvalidFill)
	case f.Asset == "":
		return fmt.Errorf("%w: fill %s: missing asset", ErrInvalidFill, f.ID)
	case f.Side != SideBuy && f.Side != SideSell:
		return fmt.Errorf("%w: fill %s: unknown side %q", ErrInvalidFill, f.ID, f.Side)
	case !f.Quantity.IsPositive():
		return fmt.Errorf("%w: fill %s: quantity must be > 0, got %s", ErrInvalidFill, f.ID, f.Quantity)
	case f.Price.IsNegative():
		return fmt.Errorf("%w: fill %s: price must be >= 0, got %s", ErrInvalidFill, f.ID, f.Price)
	case f.Fee.IsNegative():
		return fmt.Errorf("%w: fill %s: fee must be >= 0, got %s", ErrInvalidFill, f.ID, f.Fee)
	case f.ExecutedAt.IsZero():
		return fmt.Errorf("%w: fill %s: missing execution time", ErrInvalidFill, f.ID)
	}
	return nil
}

// Gross returns quantity × price before fees.
func (f Fill) Gross() decimal.Decimal {
	return f.Quantity.Mul(f.Price)
}

// SplitProduct splits an exchange product identifier such as "BTC-USD"
// into its base asset and quote currency.
func SplitProduct(productID string) (base, quote string, err error) {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(productID)), "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: malformed product id %q", ErrInvalidFill, productID)
	}
	return parts[0], parts[1], nil
}
