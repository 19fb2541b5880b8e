package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_cart/cart-order-service/internal/domain"
	"github.com/fjod/go_cart/cart-order-service/internal/service"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

type LineItemDTO struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Subtotal    string `json:"subtotal"`
}

type OrderResponseDTO struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	Status      string        `json:"status"`
	Items       []LineItemDTO `json:"items"`
	TotalAmount string        `json:"total_amount"`
	CreatedAt   string        `json:"created_at"`
	UpdatedAt   string        `json:"updated_at"`
}

func convertOrder(o *domain.Order) OrderResponseDTO {
	items := make([]LineItemDTO, 0, len(o.LineItems))
	for _, item := range o.LineItems {
		dto := LineItemDTO{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.Price.StringFixed(2),
			Subtotal:  item.Subtotal().StringFixed(2),
		}
		if item.Product != nil {
			dto.ProductName = item.Product.Name
		}
		items = append(items, dto)
	}

	return OrderResponseDTO{
		ID:          o.ID.String(),
		UserID:      o.UserID.String(),
		Status:      o.Status().String(),
		Items:       items,
		TotalAmount: o.Total().StringFixed(2),
		CreatedAt:   o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   o.UpdatedAt.Format(time.RFC3339),
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func respondUnauthorized(w http.ResponseWriter) {
	respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
}

// handleServiceError converts service error kinds to HTTP status codes
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		respondError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, service.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrConflict):
		respondError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	case errors.Is(err, service.ErrUpstreamUnavailable):
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "storage is unavailable, retry later")
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
