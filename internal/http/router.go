package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewRouter mounts the cart and order routes under /api/v1. health serves
// GET /health and may be nil.
func NewRouter(service CartService, health http.Handler, requestTimeout time.Duration) http.Handler {
	cartHandler := NewCartHandler(service, requestTimeout)
	checkoutHandler := NewCheckoutHandler(service, requestTimeout)
	ordersHandler := NewOrdersHandler(service, requestTimeout)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(UserIDMiddleware)

	if health != nil {
		r.Method(http.MethodGet, "/health", health)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Post("/items", cartHandler.AddItem)
			r.Delete("/items/{product_id}", cartHandler.RemoveItem)
		})
		r.Post("/checkout", checkoutHandler.Checkout)
		r.Get("/orders", ordersHandler.ListOrders)
	})

	return otelhttp.NewHandler(r, "cart-order-service")
}
