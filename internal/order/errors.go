package order

import (
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrEmptyOrder    = errors.New("order must contain at least one item")

	// ErrProductGone covers a product vanishing between the placement
	// pre-check and the stock decrement.
	ErrProductGone = errors.New("product no longer exists")

	ErrInvalidStatus        = errors.New("invalid order status")
	ErrInvalidPaymentStatus = errors.New("invalid payment status")

	// ErrStatusConflict signals that a concurrent transition changed the
	// order between read and update; the caller may re-read and retry.
	ErrStatusConflict = errors.New("order was modified concurrently")
)

// InsufficientStockError names the product that could not be reserved.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for product %s: %d available, %d requested",
		e.ProductID, e.Available, e.Requested)
}
