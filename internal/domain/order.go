package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxQuantity is the largest quantity a line item can hold; the column is a
// Postgres INTEGER.
const MaxQuantity = math.MaxInt32

type OrderStatus string

const (
	OrderStatusOpen   OrderStatus = "OPEN"
	OrderStatusClosed OrderStatus = "CLOSED"
)

// CanTransitionTo reports whether an order may move from s to next.
// OPEN -> CLOSED is the only transition; CLOSED is terminal.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return s == OrderStatusOpen && next == OrderStatusClosed
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusClosed
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}

// Order is either the user's single open cart (IsCart) or a closed historical order.
type Order struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	IsCart    bool       `json:"is_cart"`
	LineItems []LineItem `json:"line_items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (o *Order) Status() OrderStatus {
	if o.IsCart {
		return OrderStatusOpen
	}
	return OrderStatusClosed
}

// FindItem returns the line item for productID, or nil.
func (o *Order) FindItem(productID int64) *LineItem {
	for i := range o.LineItems {
		if o.LineItems[i].ProductID == productID {
			return &o.LineItems[i]
		}
	}
	return nil
}

func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.LineItems {
		total = total.Add(item.Subtotal())
	}
	return total
}

// LineItem is one product entry of an order. Price is the unit price captured
// when the line item was first created.
type LineItem struct {
	ID        uuid.UUID       `json:"id"`
	OrderID   uuid.UUID       `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Product   *Product        `json:"product,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (li LineItem) Subtotal() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Remove computes the quantity left after taking quantity units away.
// When empty is true the line item must be deleted instead of persisted.
func (li LineItem) Remove(quantity int) (remaining int, empty bool) {
	remaining = li.Quantity - quantity
	if remaining <= 0 {
		return 0, true
	}
	return remaining, false
}
