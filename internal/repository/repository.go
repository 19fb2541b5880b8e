package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/cart-order-service/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateCart      = errors.New("open cart for this user already exists")
	ErrLineItemNotFound   = errors.New("line item not found in cart")
	ErrOrderClosed        = errors.New("order is no longer a cart")
	ErrQuantityOutOfRange = errors.New("line item quantity out of range")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// OrderRepository stores carts, closed orders and their line items.
// Consumers define this interface, not the Postgres implementation.
type OrderRepository interface {
	// FindCart returns the open cart of the user with its line items, or ErrOrderNotFound.
	FindCart(ctx context.Context, userID uuid.UUID) (*domain.Order, error)

	// CreateCart inserts a new open cart. ErrDuplicateCart is returned when
	// the user already has one, ErrUserNotFound when the user does not exist.
	CreateCart(ctx context.Context, userID uuid.UUID) (*domain.Order, error)

	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)

	// AddLineItem merges quantity into the line item for product, creating it
	// with the product's current price when absent. ErrOrderClosed is returned
	// when the order is not a cart anymore, ErrQuantityOutOfRange when the
	// resulting quantity does not fit the column.
	AddLineItem(ctx context.Context, orderID uuid.UUID, product *domain.Product, quantity int) (*domain.LineItem, error)

	// RemoveLineItem takes quantity units away from the line item of productID
	// and deletes it when nothing is left. It returns the remaining quantity.
	RemoveLineItem(ctx context.Context, orderID uuid.UUID, productID int64, quantity int) (int, error)

	// CloseCart flips the cart to a closed order and records an OrderPlaced
	// outbox event in the same transaction.
	CloseCart(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)

	ListClosedOrders(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)

	Ping(ctx context.Context) error
	RunMigrations(*Credentials) error
	Close() error
}

type OutboxEvent struct {
	ID          int64
	AggregateId string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}
