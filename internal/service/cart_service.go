package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fjod/go_cart/cart-order-service/internal/domain"
	"github.com/fjod/go_cart/cart-order-service/internal/product"
	"github.com/fjod/go_cart/cart-order-service/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxClosedRetries bounds how often a mutation re-resolves the cart after a
// concurrent checkout closed the one it was writing to.
const maxClosedRetries = 1

type CartService struct {
	repo     repository.OrderRepository
	products product.Store
	tracer   trace.Tracer
}

func NewCartService(repo repository.OrderRepository, products product.Store) *CartService {
	return &CartService{
		repo:     repo,
		products: products,
		tracer:   otel.Tracer("github.com/fjod/go_cart/cart-order-service/internal/service"),
	}
}

// ResolveCart returns the user's open cart, creating it on first access.
func (s *CartService) ResolveCart(ctx context.Context, userID uuid.UUID) (_ *domain.Order, err error) {
	ctx, span := s.startSpan(ctx, "CartService.ResolveCart", userID)
	defer func() { s.finishSpan(ctx, span, err) }()

	if userID == uuid.Nil {
		return nil, validationError("user id is required")
	}

	cart, err := s.resolveCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.attachProducts(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// AddToCart merges quantity units of the product into the cart. A new line
// item takes the product's current price as its snapshot price.
func (s *CartService) AddToCart(ctx context.Context, userID uuid.UUID, productID int64, quantity int) (_ *domain.Order, err error) {
	ctx, span := s.startSpan(ctx, "CartService.AddToCart", userID,
		attribute.Int64("product.id", productID), attribute.Int("quantity", quantity))
	defer func() { s.finishSpan(ctx, span, err) }()

	if userID == uuid.Nil {
		return nil, validationError("user id is required")
	}
	if productID <= 0 {
		return nil, validationError("product_id must be positive, got %d", productID)
	}
	if quantity <= 0 || quantity > domain.MaxQuantity {
		return nil, validationError("quantity must be between 1 and %d, got %d", domain.MaxQuantity, quantity)
	}

	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, classify(err)
	}

	return s.mutateCart(ctx, userID, func(cart *domain.Order) error {
		item, err := s.repo.AddLineItem(ctx, cart.ID, p, quantity)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "line item added",
			"order_id", cart.ID, "product_id", productID, "quantity", item.Quantity, "price", item.Price.String())
		return nil
	})
}

// RemoveFromCart takes quantityToRemove units of the product out of the cart
// and deletes the line item when none are left.
func (s *CartService) RemoveFromCart(ctx context.Context, userID uuid.UUID, productID int64, quantityToRemove int) (_ *domain.Order, err error) {
	ctx, span := s.startSpan(ctx, "CartService.RemoveFromCart", userID,
		attribute.Int64("product.id", productID), attribute.Int("quantity", quantityToRemove))
	defer func() { s.finishSpan(ctx, span, err) }()

	if userID == uuid.Nil {
		return nil, validationError("user id is required")
	}
	if productID <= 0 {
		return nil, validationError("product_id must be positive, got %d", productID)
	}
	if quantityToRemove <= 0 || quantityToRemove > domain.MaxQuantity {
		return nil, validationError("quantity must be between 1 and %d, got %d", domain.MaxQuantity, quantityToRemove)
	}

	return s.mutateCart(ctx, userID, func(cart *domain.Order) error {
		remaining, err := s.repo.RemoveLineItem(ctx, cart.ID, productID, quantityToRemove)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "line item removed",
			"order_id", cart.ID, "product_id", productID, "removed", quantityToRemove, "remaining", remaining)
		return nil
	})
}

// Checkout closes the user's cart. The closed order is returned and a new
// cart is created lazily on the next cart access.
func (s *CartService) Checkout(ctx context.Context, userID uuid.UUID) (_ *domain.Order, err error) {
	ctx, span := s.startSpan(ctx, "CartService.Checkout", userID)
	defer func() { s.finishSpan(ctx, span, err) }()

	if userID == uuid.Nil {
		return nil, validationError("user id is required")
	}

	cart, err := s.resolveCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !cart.Status().CanTransitionTo(domain.OrderStatusClosed) {
		return nil, classify(repository.ErrOrderClosed)
	}

	order, err := s.repo.CloseCart(ctx, cart.ID)
	if err != nil {
		return nil, classify(err)
	}

	slog.InfoContext(ctx, "cart checked out",
		"order_id", order.ID, "user_id", userID, "items", len(order.LineItems), "total", order.Total().String())

	if err := s.attachProducts(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ListPastOrders returns the user's closed orders, oldest first.
func (s *CartService) ListPastOrders(ctx context.Context, userID uuid.UUID) (_ []*domain.Order, err error) {
	ctx, span := s.startSpan(ctx, "CartService.ListPastOrders", userID)
	defer func() { s.finishSpan(ctx, span, err) }()

	if userID == uuid.Nil {
		return nil, validationError("user id is required")
	}

	orders, err := s.repo.ListClosedOrders(ctx, userID)
	if err != nil {
		return nil, classify(err)
	}

	for _, o := range orders {
		if err := s.attachProducts(ctx, o); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *CartService) resolveCart(ctx context.Context, userID uuid.UUID) (*domain.Order, error) {
	cart, err := s.repo.FindCart(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, repository.ErrOrderNotFound) {
		return nil, classify(err)
	}

	cart, err = s.repo.CreateCart(ctx, userID)
	if err == nil {
		slog.InfoContext(ctx, "cart created", "user_id", userID, "order_id", cart.ID)
		return cart, nil
	}
	if !errors.Is(err, repository.ErrDuplicateCart) {
		return nil, classify(err)
	}

	// A concurrent request created the cart between find and create.
	slog.DebugContext(ctx, "cart created concurrently, retrying find", "user_id", userID)
	cart, err = s.repo.FindCart(ctx, userID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, classify(repository.ErrDuplicateCart)
	}
	if err != nil {
		return nil, classify(err)
	}
	return cart, nil
}

// mutateCart resolves the cart and applies fn to it. When a concurrent
// checkout closed the cart first, the mutation is retried on the new cart.
func (s *CartService) mutateCart(ctx context.Context, userID uuid.UUID, fn func(cart *domain.Order) error) (*domain.Order, error) {
	for attempt := 0; ; attempt++ {
		cart, err := s.resolveCart(ctx, userID)
		if err != nil {
			return nil, err
		}

		err = fn(cart)
		if errors.Is(err, repository.ErrOrderClosed) && attempt < maxClosedRetries {
			slog.InfoContext(ctx, "cart closed during mutation, retrying", "user_id", userID, "order_id", cart.ID)
			continue
		}
		if err != nil {
			return nil, classify(err)
		}

		refreshed, err := s.repo.GetOrder(ctx, cart.ID)
		if err != nil {
			return nil, classify(err)
		}
		if err := s.attachProducts(ctx, refreshed); err != nil {
			return nil, err
		}
		return refreshed, nil
	}
}

// attachProducts loads the catalog entry of every line item. Products that
// left the catalog stay nil; the snapshot price is kept either way.
func (s *CartService) attachProducts(ctx context.Context, order *domain.Order) error {
	seen := make(map[int64]*domain.Product, len(order.LineItems))
	for i := range order.LineItems {
		item := &order.LineItems[i]
		p, ok := seen[item.ProductID]
		if !ok {
			var err error
			p, err = s.products.GetProduct(ctx, item.ProductID)
			if errors.Is(err, product.ErrProductNotFound) {
				slog.WarnContext(ctx, "line item product missing from catalog",
					"order_id", order.ID, "product_id", item.ProductID)
				p = nil
			} else if err != nil {
				return classify(err)
			}
			seen[item.ProductID] = p
		}
		item.Product = p
	}
	return nil
}

func (s *CartService) startSpan(ctx context.Context, name string, userID uuid.UUID, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("user.id", userID.String()))
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *CartService) finishSpan(ctx context.Context, span trace.Span, err error) {
	defer span.End()
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if errors.Is(err, ErrUpstreamUnavailable) {
		slog.ErrorContext(ctx, "cart operation failed", "error", err)
	}
}
