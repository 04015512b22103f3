package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mapmates-ledger/internal/api/handler"
)

// NewRouter sets up and returns a new HTTP router.
func NewRouter(ledgerHandler *handler.LedgerHandler, adminToken string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(handler.DefaultTimeout))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Ledger API routes
	r.Route("/accounts", func(r chi.Router) {
		r.Post("/", ledgerHandler.CreateAccount)
		r.Post("/{userID}/earn", ledgerHandler.Earn)
		r.Post("/{userID}/spend", ledgerHandler.Spend)
		r.Get("/{userID}/balance", ledgerHandler.GetBalance)
		r.Get("/{userID}/history", ledgerHandler.GetHistory)
	})

	r.Get("/leaderboard", ledgerHandler.Leaderboard)

	// Admin routes, gated by the configured bearer token
	r.Route("/admin", func(r chi.Router) {
		r.Use(AdminOnly(adminToken))
		r.Post("/rewards/broadcast", ledgerHandler.BroadcastEarn)
		r.Get("/stats", ledgerHandler.Stats)
	})

	return r
}
