package checkout

import (
	"errors"
	"fmt"

	"github.com/lokapasar/backend-lapak/internal/store"
)

var (
	// ErrInsufficientStock signals the requested quantity exceeds what is available.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrProductUnavailable signals the product is not in a sellable status.
	ErrProductUnavailable = errors.New("product unavailable")
)

// CheckAvailable verifies a product can satisfy the requested quantity. The
// check is advisory: stock may be consumed by a concurrent checkout between
// this call and settlement, where the authoritative clamped decrement runs.
func CheckAvailable(p store.Product, requestedQty int) error {
	if p.Status != store.ProductStatusActive {
		return fmt.Errorf("%q is not available for purchase: %w", p.Name, ErrProductUnavailable)
	}
	if requestedQty > int(p.StockCount) {
		return fmt.Errorf("%q has only %d in stock, %d requested: %w", p.Name, p.StockCount, requestedQty, ErrInsufficientStock)
	}
	return nil
}
