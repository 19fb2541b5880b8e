package product

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fjod/go_cart/cart-order-service/internal/domain"
	"github.com/sony/gobreaker/v2"
)

type BreakerSettings struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	ConsecutiveFails uint32
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:             "product-store",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          10 * time.Second,
		ConsecutiveFails: 5,
	}
}

// BreakerStore stops calling a failing catalog for a while. A missing
// product is a valid answer and does not count as a failure.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker[*domain.Product]
}

func NewBreakerStore(next Store, s BreakerSettings) *BreakerStore {
	cb := gobreaker.NewCircuitBreaker[*domain.Product](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFails
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrProductNotFound)
		},
	})
	return &BreakerStore{next: next, cb: cb}
}

func (b *BreakerStore) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return b.cb.Execute(func() (*domain.Product, error) {
		return b.next.GetProduct(ctx, id)
	})
}

func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}
