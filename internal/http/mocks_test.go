package http

import (
	"context"
	"time"

	"github.com/fjod/go_cart/cart-order-service/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type removeCall struct {
	productID int64
	quantity  int
}

// MockCartService returns the configured order or error and records calls.
type MockCartService struct {
	order  *domain.Order
	orders []*domain.Order
	err    error

	addProductID int64
	addQuantity  int
	removes      []removeCall
	resolveCalls int
}

func (m *MockCartService) ResolveCart(_ context.Context, _ uuid.UUID) (*domain.Order, error) {
	m.resolveCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.order, nil
}

func (m *MockCartService) AddToCart(_ context.Context, _ uuid.UUID, productID int64, quantity int) (*domain.Order, error) {
	m.addProductID = productID
	m.addQuantity = quantity
	if m.err != nil {
		return nil, m.err
	}
	return m.order, nil
}

func (m *MockCartService) RemoveFromCart(_ context.Context, _ uuid.UUID, productID int64, quantity int) (*domain.Order, error) {
	m.removes = append(m.removes, removeCall{productID: productID, quantity: quantity})
	if m.err != nil {
		return nil, m.err
	}
	return m.order, nil
}

func (m *MockCartService) Checkout(_ context.Context, _ uuid.UUID) (*domain.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.order, nil
}

func (m *MockCartService) ListPastOrders(_ context.Context, _ uuid.UUID) ([]*domain.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.orders, nil
}

func testOrder(userID uuid.UUID, isCart bool) *domain.Order {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	orderID := uuid.New()
	return &domain.Order{
		ID:     orderID,
		UserID: userID,
		IsCart: isCart,
		LineItems: []domain.LineItem{
			{
				ID:        uuid.New(),
				OrderID:   orderID,
				ProductID: 2,
				Quantity:  3,
				Price:     decimal.RequireFromString("29.99"),
				Product:   &domain.Product{ID: 2, Name: "Mouse", Price: decimal.RequireFromString("31.00")},
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
