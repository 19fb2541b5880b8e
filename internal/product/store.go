package product

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/cart-order-service/internal/domain"
)

var ErrProductNotFound = errors.New("product not found")

// Store is the read-only catalog the cart reads product prices from.
type Store interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}
