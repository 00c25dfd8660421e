package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart             = errors.New("cart is empty")
	ErrInvalidDeliveryOption = errors.New("invalid delivery option")
	ErrOrderNotFound         = errors.New("order not found")
	ErrVariantNotFound       = errors.New("variant not found")
	ErrReservationExpired    = errors.New("order reservation has expired")
	ErrOrderNotConfirmable   = errors.New("order is not in a confirmable state")
	ErrOrderAlreadyFinalized = errors.New("order is already in a terminal state")
)

// InsufficientStockError names the offending line so callers can tell the
// customer which item blocked the operation.
type InsufficientStockError struct {
	VariantID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.VariantID
	}
	return fmt.Sprintf("insufficient stock for %q: requested %d, available %d", name, e.Requested, e.Available)
}

// IsInsufficientStock reports whether err is an insufficient-stock failure.
func IsInsufficientStock(err error) bool {
	var ise *InsufficientStockError
	return errors.As(err, &ise)
}
