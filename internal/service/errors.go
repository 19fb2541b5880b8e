package service

import (
	"errors"
	"fmt"

	"github.com/fjod/go_cart/cart-order-service/internal/product"
	"github.com/fjod/go_cart/cart-order-service/internal/repository"
)

// Error kinds returned by CartService. Callers pick a response with
// errors.Is; the collaborator error stays wrapped underneath.
var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrConflict            = errors.New("conflict")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// classify wraps a collaborator error with the kind it maps to.
func classify(err error) error {
	switch {
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrLineItemNotFound),
		errors.Is(err, product.ErrProductNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, repository.ErrQuantityOutOfRange):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	case errors.Is(err, repository.ErrDuplicateCart),
		errors.Is(err, repository.ErrOrderClosed):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	default:
		return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
}
