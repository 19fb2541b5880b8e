package service

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_cart/cart-order-service/internal/domain"
	"github.com/fjod/go_cart/cart-order-service/internal/product"
	"github.com/fjod/go_cart/cart-order-service/internal/repository"
	"github.com/google/uuid"
)

// FakeRepository is an in-memory repository.OrderRepository with the same
// uniqueness and open-cart guarantees as the Postgres implementation.
type FakeRepository struct {
	mu     sync.Mutex
	users  map[uuid.UUID]bool
	orders map[uuid.UUID]*domain.Order
	seq    int64
	Events []domain.OrderPlacedEvent

	FindErr   error
	CreateErr error
	AddErr    error
	RemoveErr error
	CloseErr  error
	ListErr   error

	// AlwaysDuplicate makes CreateCart report a duplicate without inserting.
	AlwaysDuplicate bool
	// BeforeCreate runs before CreateCart inserts, to simulate a concurrent request.
	BeforeCreate func(userID uuid.UUID)
	// BeforeAdd runs before AddLineItem writes, to simulate a concurrent checkout.
	BeforeAdd func(orderID uuid.UUID)

	CreateCalls int
}

func NewFakeRepository(users ...uuid.UUID) *FakeRepository {
	r := &FakeRepository{
		users:  make(map[uuid.UUID]bool),
		orders: make(map[uuid.UUID]*domain.Order),
	}
	for _, u := range users {
		r.users[u] = true
	}
	return r
}

func (r *FakeRepository) now() time.Time {
	r.seq++
	return time.Unix(1700000000, 0).Add(time.Duration(r.seq) * time.Millisecond)
}

func copyOrder(o *domain.Order) *domain.Order {
	c := *o
	c.LineItems = make([]domain.LineItem, len(o.LineItems))
	copy(c.LineItems, o.LineItems)
	return &c
}

func (r *FakeRepository) openCart(userID uuid.UUID) *domain.Order {
	for _, o := range r.orders {
		if o.UserID == userID && o.IsCart {
			return o
		}
	}
	return nil
}

func (r *FakeRepository) FindCart(_ context.Context, userID uuid.UUID) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FindErr != nil {
		return nil, r.FindErr
	}
	cart := r.openCart(userID)
	if cart == nil {
		return nil, repository.ErrOrderNotFound
	}
	return copyOrder(cart), nil
}

func (r *FakeRepository) CreateCart(ctx context.Context, userID uuid.UUID) (*domain.Order, error) {
	if r.BeforeCreate != nil {
		r.BeforeCreate(userID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.CreateCalls++
	if r.CreateErr != nil {
		return nil, r.CreateErr
	}
	if !r.users[userID] {
		return nil, repository.ErrUserNotFound
	}
	if r.AlwaysDuplicate || r.openCart(userID) != nil {
		return nil, repository.ErrDuplicateCart
	}

	now := r.now()
	cart := &domain.Order{
		ID:        uuid.New(),
		UserID:    userID,
		IsCart:    true,
		LineItems: []domain.LineItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.orders[cart.ID] = cart
	return copyOrder(cart), nil
}

// insertCart stores an open cart directly, bypassing CreateCart.
func (r *FakeRepository) insertCart(userID uuid.UUID) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	cart := &domain.Order{ID: uuid.New(), UserID: userID, IsCart: true, LineItems: []domain.LineItem{}, CreatedAt: now, UpdatedAt: now}
	r.orders[cart.ID] = cart
	return cart.ID
}

func (r *FakeRepository) GetOrder(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (r *FakeRepository) AddLineItem(_ context.Context, orderID uuid.UUID, p *domain.Product, quantity int) (*domain.LineItem, error) {
	if r.BeforeAdd != nil {
		r.BeforeAdd(orderID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.AddErr != nil {
		return nil, r.AddErr
	}
	o, ok := r.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if !o.IsCart {
		return nil, repository.ErrOrderClosed
	}

	now := r.now()
	if item := o.FindItem(p.ID); item != nil {
		if item.Quantity > domain.MaxQuantity-quantity {
			return nil, repository.ErrQuantityOutOfRange
		}
		item.Quantity += quantity
		item.UpdatedAt = now
		c := *item
		return &c, nil
	}

	o.LineItems = append(o.LineItems, domain.LineItem{
		ID:        uuid.New(),
		OrderID:   orderID,
		ProductID: p.ID,
		Quantity:  quantity,
		Price:     p.Price,
		CreatedAt: now,
		UpdatedAt: now,
	})
	c := o.LineItems[len(o.LineItems)-1]
	return &c, nil
}

func (r *FakeRepository) RemoveLineItem(_ context.Context, orderID uuid.UUID, productID int64, quantity int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.RemoveErr != nil {
		return 0, r.RemoveErr
	}
	o, ok := r.orders[orderID]
	if !ok {
		return 0, repository.ErrOrderNotFound
	}
	if !o.IsCart {
		return 0, repository.ErrOrderClosed
	}

	for i, item := range o.LineItems {
		if item.ProductID != productID {
			continue
		}
		remaining, empty := item.Remove(quantity)
		if empty {
			o.LineItems = append(o.LineItems[:i], o.LineItems[i+1:]...)
			return 0, nil
		}
		o.LineItems[i].Quantity = remaining
		return remaining, nil
	}
	return 0, repository.ErrLineItemNotFound
}

func (r *FakeRepository) CloseCart(_ context.Context, orderID uuid.UUID) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CloseErr != nil {
		return nil, r.CloseErr
	}
	o, ok := r.orders[orderID]
	if !ok || !o.IsCart {
		return nil, repository.ErrOrderClosed
	}
	o.IsCart = false
	o.UpdatedAt = r.now()
	r.Events = append(r.Events, domain.NewOrderPlacedEvent(o, o.UpdatedAt))
	return copyOrder(o), nil
}

// closeCart closes the user's open cart directly, bypassing the service.
func (r *FakeRepository) closeCart(orderID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[orderID].IsCart = false
}

func (r *FakeRepository) ListClosedOrders(_ context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ListErr != nil {
		return nil, r.ListErr
	}
	orders := []*domain.Order{}
	for _, o := range r.orders {
		if o.UserID == userID && !o.IsCart {
			orders = append(orders, copyOrder(o))
		}
	}
	// created_at ascending
	for i := 1; i < len(orders); i++ {
		for j := i; j > 0 && orders[j].CreatedAt.Before(orders[j-1].CreatedAt); j-- {
			orders[j], orders[j-1] = orders[j-1], orders[j]
		}
	}
	return orders, nil
}

func (r *FakeRepository) openCarts(userID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.orders {
		if o.UserID == userID && o.IsCart {
			n++
		}
	}
	return n
}

func (r *FakeRepository) Ping(context.Context) error                  { return nil }
func (r *FakeRepository) RunMigrations(*repository.Credentials) error { return nil }
func (r *FakeRepository) Close() error                                { return nil }

// MockProductStore implements product.Store for testing
type MockProductStore struct {
	mu       sync.Mutex
	Products map[int64]*domain.Product
	Err      error
}

func (m *MockProductStore) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.Products[id]
	if !ok {
		return nil, product.ErrProductNotFound
	}
	c := *p
	return &c, nil
}

func (m *MockProductStore) setPrice(id int64, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Products[id].Price = mustDecimal(price)
}
