package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// ProductUpdatesTopic carries catalog changes. Line items already in a cart
// keep their snapshot price; only new line items see the change.
const ProductUpdatesTopic = "product-updates"

// ProductUpdatedEvent is the payload published by the catalog on a price or
// name change, or on removal.
type ProductUpdatedEvent struct {
	ProductID int64  `json:"product_id"`
	Change    string `json:"change,omitempty"`
}

// Invalidator drops cached catalog entries. *product.CachedStore satisfies it.
type Invalidator interface {
	Invalidate(ctx context.Context, id int64) error
}

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	cache  Invalidator
	reader MessageReader
}

func NewConsumer(cache Invalidator, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    ProductUpdatesTopic,
		GroupID:  "cart-order-service",
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{cache: cache, reader: reader}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		slog.Warn("error closing kafka reader", "error", err)
	}
}

// processMessage reads one message and invalidates the product it names.
// Malformed messages are logged and skipped.
func (c *Consumer) processMessage(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		slog.ErrorContext(ctx, "error reading product update", "error", err)
		return
	}

	var event ProductUpdatedEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		slog.WarnContext(ctx, "error parsing product update", "offset", m.Offset, "error", err)
		return
	}
	if event.ProductID <= 0 {
		slog.WarnContext(ctx, "product update without product_id", "offset", m.Offset)
		return
	}

	if err := c.cache.Invalidate(ctx, event.ProductID); err != nil {
		slog.ErrorContext(ctx, "failed to invalidate product cache", "product_id", event.ProductID, "error", err)
		return
	}

	slog.InfoContext(ctx, "product cache invalidated", "product_id", event.ProductID, "change", event.Change)
}
