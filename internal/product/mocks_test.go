package product

import (
	"context"
	"sync"

	"github.com/fjod/go_cart/cart-order-service/internal/domain"
)

// MockStore implements Store for testing
type MockStore struct {
	mu       sync.Mutex
	Products map[int64]*domain.Product
	Err      error
	Calls    int
}

func (m *MockStore) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	product, exists := m.Products[id]
	if !exists {
		return nil, ErrProductNotFound
	}
	return product, nil
}

func (m *MockStore) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// BlockingStore holds every GetProduct until release is closed and records
// the context error it saw at that point.
type BlockingStore struct {
	Product *domain.Product
	started chan struct{}
	release chan struct{}
	once    sync.Once

	mu     sync.Mutex
	ctxErr error
	calls  int
}

func NewBlockingStore(p *domain.Product) *BlockingStore {
	return &BlockingStore{
		Product: p,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *BlockingStore) GetProduct(ctx context.Context, _ int64) (*domain.Product, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release

	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if err := ctx.Err(); err != nil {
		b.ctxErr = err
		return nil, err
	}
	return b.Product, nil
}
