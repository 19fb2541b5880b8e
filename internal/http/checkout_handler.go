package http

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type CheckoutHandler struct {
	service CartService
	timeout time.Duration
}

func NewCheckoutHandler(service CartService, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		service: service,
		timeout: timeout,
	}
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == uuid.Nil {
		respondUnauthorized(w)
		return
	}

	order, err := h.service.Checkout(ctx, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, convertOrder(order))
}
