/**
 * @description
 * This file sets up the HTTP router for the payment-service using the go-chi/chi router.
 * It defines the API routes, applies middleware for logging, CORS, and authentication,
 * and maps the routes to their corresponding handler functions.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the payment routes under /payment.
func NewRouter(h *Handler, keys *JWKSKeySource, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	r.Route("/payment", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("Payment service is healthy"))
		})

		// The gateway posts callbacks without a user token; the signature is the credential.
		r.Post("/verify-payment", h.handleVerifyPayment)

		// Protected routes that require authentication
		r.Group(func(r chi.Router) {
			r.Use(ClerkAuthMiddleware(keys))

			r.Post("/create-order", h.handleCreateOrder)
			r.Get("/history", h.handleHistory)
		})
	})

	return r
}
