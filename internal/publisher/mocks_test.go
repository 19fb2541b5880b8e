package publisher

import (
	"context"
	"sync"

	r "github.com/fjod/go_cart/cart-order-service/internal/repository"
	"github.com/segmentio/kafka-go"
)

type MockRepository struct {
	mu           sync.Mutex
	OutboxEvents []*r.OutboxEvent
	GetErr       error
	MarkErr      error
	ProcessedIDs []int64
	Limit        int
}

// GetUnprocessedEvents returns the events not yet marked processed.
func (m *MockRepository) GetUnprocessedEvents(_ context.Context, limit int) ([]*r.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Limit = limit
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	var out []*r.OutboxEvent
	for _, e := range m.OutboxEvents {
		if !m.processed(e.ID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockRepository) MarkEventAsProcessed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkErr != nil {
		return m.MarkErr
	}
	m.ProcessedIDs = append(m.ProcessedIDs, id)
	return nil
}

func (m *MockRepository) processed(id int64) bool {
	for _, p := range m.ProcessedIDs {
		if p == id {
			return true
		}
	}
	return false
}

type MockWriter struct {
	mu       sync.Mutex
	Messages []kafka.Message
	// FailKeys makes WriteMessages fail for messages with these keys.
	FailKeys map[string]error
	Closed   bool
}

func (w *MockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range msgs {
		if err, ok := w.FailKeys[string(m.Key)]; ok {
			return err
		}
	}
	w.Messages = append(w.Messages, msgs...)
	return nil
}

func (w *MockWriter) Close() error {
	w.Closed = true
	return nil
}
