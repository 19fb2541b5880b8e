package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/cart-order-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 16

// CartService is the part of the service layer the HTTP adapter needs.
type CartService interface {
	ResolveCart(ctx context.Context, userID uuid.UUID) (*domain.Order, error)
	AddToCart(ctx context.Context, userID uuid.UUID, productID int64, quantity int) (*domain.Order, error)
	RemoveFromCart(ctx context.Context, userID uuid.UUID, productID int64, quantityToRemove int) (*domain.Order, error)
	Checkout(ctx context.Context, userID uuid.UUID) (*domain.Order, error)
	ListPastOrders(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)
}

type CartHandler struct {
	service CartService
	timeout time.Duration
}

func NewCartHandler(service CartService, timeout time.Duration) *CartHandler {
	return &CartHandler{
		service: service,
		timeout: timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == uuid.Nil {
		respondUnauthorized(w)
		return
	}

	cart, err := h.service.ResolveCart(ctx, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, convertOrder(cart))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == uuid.Nil {
		respondUnauthorized(w)
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}

	if req.Quantity <= 0 || req.Quantity > domain.MaxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity",
			fmt.Sprintf("quantity must be between 1 and %d", domain.MaxQuantity))
		return
	}

	cart, err := h.service.AddToCart(ctx, userID, req.ProductID, req.Quantity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, convertOrder(cart))
}

// DELETE /api/v1/cart/items/{product_id}?quantity=n
// Without a quantity the whole line item is removed.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == uuid.Nil {
		respondUnauthorized(w)
		return
	}

	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "invalid product ID")
		return
	}

	quantity, ok := removeQuantity(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_quantity",
			fmt.Sprintf("quantity must be between 1 and %d", domain.MaxQuantity))
		return
	}

	cart, err := h.service.RemoveFromCart(ctx, userID, productID, quantity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, convertOrder(cart))
}

// removeQuantity reads ?quantity. A missing value means everything: no line
// item holds more than domain.MaxQuantity, so removing that many deletes it.
func removeQuantity(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("quantity")
	if raw == "" {
		return domain.MaxQuantity, true
	}

	q, err := strconv.Atoi(raw)
	if err != nil || q <= 0 || q > domain.MaxQuantity {
		return 0, false
	}
	return q, true
}
