package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrInvalidFill           = errors.New("invalid_fill")
	ErrUnorderedInput        = errors.New("unordered_input")
	ErrInsufficientInventory = errors.New("insufficient_inventory")
	ErrOverConsumption       = errors.New("over_consumption")
	ErrLotNotFound           = errors.New("lot_not_found")
	ErrNoOpenLots            = errors.New("no_open_lots")
	ErrInvalidTimestamp      = errors.New("invalid_timestamp")
	ErrSelectionRequired     = errors.New("selection_required")
	ErrInvalidSelection      = errors.New("invalid_selection")
	ErrInvalidMethod         = errors.New("invalid_method")
	ErrUnclassifiedRecord    = errors.New("unclassified_record")
	ErrExchangeNotConfigured = errors.New("exchange_not_configured")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// InsufficientInventoryError reports a sell larger than the open inventory
// of its asset. It matches ErrInsufficientInventory with errors.Is.
type InsufficientInventoryError struct {
	FillID    string
	Asset     string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("%s: sell %s of %s %s exceeds open inventory %s",
		ErrInsufficientInventory, e.FillID, e.Requested, e.Asset, e.Available)
}

func (e *InsufficientInventoryError) Unwrap() error {
	return ErrInsufficientInventory
}
