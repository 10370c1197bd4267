/**
 * @description
 * This file sets up the HTTP router for the banking-service. It defines the
 * API endpoints, associates them with their corresponding handlers, and
 * applies the authentication, role-gating, and rate-limit middleware.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jawnt/banking-service/internal/app"
)

// RouterDeps carries the collaborators the router wires into middleware.
type RouterDeps struct {
	JWTSecret                 string
	RateLimiter               app.RateLimiter
	PaymentRateLimitPerMinute int
}

// BankingRoutes creates and returns the router for the banking service.
func BankingRoutes(h *BankingHandlers, deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(deps.JWTSecret))

		// Ledger operations are reserved for superusers.
		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleSuperuser))

			r.Post("/internal-accounts", h.CreateInternalAccountHandler)
			r.Get("/internal-accounts", h.ListInternalAccountsHandler)
			r.Patch("/internal-accounts/{id}", h.UpdateInternalAccountHandler)
			r.Delete("/internal-accounts/{id}", h.DeleteInternalAccountHandler)

			r.Group(func(r chi.Router) {
				r.Use(RateLimitMiddleware(deps.RateLimiter, "payment_create", deps.PaymentRateLimitPerMinute))

				r.Post("/payments/ach-debit", h.CreateACHDebitHandler)
				r.Post("/payments/ach-credit", h.CreateACHCreditHandler)
				r.Post("/payments/book", h.CreateBookTransferHandler)
			})
		})

		// Organization admins manage their own linked external accounts.
		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleOrgAdmin))

			r.Post("/external-accounts", h.CreateExternalAccountHandler)
			r.Get("/external-accounts", h.ListExternalAccountsHandler)
			r.Post("/plaid/create-link-token", h.CreateLinkTokenHandler)
			r.Post("/plaid/exchange-token", h.ExchangeTokenHandler)
		})

		// Payment reads are open to both roles.
		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleSuperuser, RoleOrgAdmin))

			r.Get("/payments", h.ListPaymentsHandler)
			r.Get("/payments/{id}/status", h.GetPaymentStatusHandler)
		})
	})

	return r
}
