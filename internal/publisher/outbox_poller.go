package publisher

import (
	"context"
	"log/slog"
	"time"

	r "github.com/fjod/go_cart/cart-order-service/internal/repository"
	"github.com/segmentio/kafka-go"
)

const (
	// OrdersPlacedTopic receives one message per checked out cart.
	OrdersPlacedTopic = "orders-placed"

	defaultBatchSize = 100
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller publishes outbox events written by checkout to Kafka and marks
// them processed. Delivery is at least once: an event whose mark fails is
// published again on the next tick.
type OutboxPoller struct {
	eventTick time.Duration
	batchSize int
	repo      r.OutboxRepository
	writer    MessageWriter
}

func NewOutboxPoller(repo r.OutboxRepository, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  OrdersPlacedTopic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &OutboxPoller{
		eventTick: time.Second,
		batchSize: defaultBatchSize,
		repo:      repo,
		writer:    w,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	defer eventTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// processUnpublishedEvents returns the number of events published and marked.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch outbox events", "error", err)
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publishToKafka(ctx, event); err != nil {
			slog.ErrorContext(ctx, "failed to publish outbox event", "event_id", event.ID, "error", err)
			continue
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			slog.ErrorContext(ctx, "failed to mark outbox event as processed", "event_id", event.ID, "error", err)
			continue
		}
		published++
	}

	if published > 0 {
		slog.InfoContext(ctx, "outbox events published", "count", published, "topic", OrdersPlacedTopic)
	}
	return published
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *r.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateId), // order_id for ordering
		Value: event.Payload,             // Already JSON from database
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	return p.writer.WriteMessages(ctx, msg)
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}
