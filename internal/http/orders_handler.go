package http

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type OrdersHandler struct {
	service CartService
	timeout time.Duration
}

func NewOrdersHandler(service CartService, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		service: service,
		timeout: timeout,
	}
}

type OrdersListResponseDTO struct {
	Orders []OrderResponseDTO `json:"orders"`
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == uuid.Nil {
		respondUnauthorized(w)
		return
	}

	orders, err := h.service.ListPastOrders(ctx, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	dtos := make([]OrderResponseDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, convertOrder(o))
	}

	respondJSON(w, http.StatusOK, OrdersListResponseDTO{Orders: dtos})
}
