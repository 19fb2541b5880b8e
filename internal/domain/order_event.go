package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const EventTypeOrderPlaced = "OrderPlaced"

type OrderPlacedItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// OrderPlacedEvent is the outbox payload written when a cart is checked out.
type OrderPlacedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	UserID      uuid.UUID         `json:"user_id"`
	Items       []OrderPlacedItem `json:"items"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	ClosedAt    time.Time         `json:"closed_at"`
}

func NewOrderPlacedEvent(order *Order, closedAt time.Time) OrderPlacedEvent {
	items := make([]OrderPlacedItem, 0, len(order.LineItems))
	for _, li := range order.LineItems {
		items = append(items, OrderPlacedItem{
			ProductID: li.ProductID,
			Quantity:  li.Quantity,
			UnitPrice: li.Price,
			Subtotal:  li.Subtotal(),
		})
	}
	return OrderPlacedEvent{
		OrderID:     order.ID,
		UserID:      order.UserID,
		Items:       items,
		TotalAmount: order.Total(),
		ClosedAt:    closedAt,
	}
}
