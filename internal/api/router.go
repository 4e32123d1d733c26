package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures NewRouter
type RouterOptions struct {
	AllowedOrigins []string
	Metrics        bool
}

// NewRouter mounts every route of the bazaar API
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.RequestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{"Link", RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if opts.Metrics && h.Metrics != nil {
		r.Handle("/metrics", h.Metrics.Handler())
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "block": h.Bazaar.CurrentBlock()})
	})

	// WebSocket endpoint
	r.Get("/ws", h.Events)

	// Public endpoints
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Get("/escrow", h.GetEscrow)
	r.Get("/escrow/audit", h.GetAudit)
	r.Get("/quotes", h.GetQuotes)
	r.Get("/traders", h.ListTraders)
	r.Get("/traders/{account}", h.GetTrader)

	// Protected endpoints (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(h.JWTAuthMiddleware)
		r.Post("/traders", h.CreateTrader)
		r.Put("/traders/me", h.UpdateProfile)
		r.Put("/traders/me/limits", h.UpdateLimits)

		r.Post("/trades", h.InitiateBuy)
		r.Get("/trades", h.ListTrades)
		r.Get("/trades/{id}", h.GetTrade)
		r.Post("/trades/{id}/escrow", h.EscrowCoin)
		r.Post("/trades/{id}/cancel", h.CancelEscrow)
		r.Post("/trades/{id}/confirm", h.ConfirmReceived)
		r.Post("/trades/{id}/dispute", h.OpenDispute)
		r.Post("/trades/{id}/dispute/close", h.CloseDispute)

		r.Get("/balance", h.GetBalance)
	})

	return r
}
