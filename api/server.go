/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. hlog.NewHandler:       Request-scoped zerolog logger
  2. hlog.RequestIDHandler: Unique ID per request, echoed in Request-Id
  3. hlog.AccessHandler:    One access log line per request
  4. Recoverer:             Panic recovery (500 instead of crash)
  5. CORS:                  Cross-origin requests for frontend

ROUTE GROUPS:
  /api/users/*       Directory, per-user expense lists, notifications
  /api/managers      Assignable managers
  /api/expenses/*    Submission and decisions
  /api/currencies/*  Supported currencies and conversion
  /api/scenarios/*   Demo scenarios

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/warp/expense-engine/config"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsCfg config.CORSConfig, log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(hlog.NewHandler(log))
	r.Use(hlog.RequestIDHandler("req_id", "Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   config.Split(corsCfg.AllowedOrigins),
		AllowedMethods:   config.Split(corsCfg.AllowedMethods),
		AllowedHeaders:   config.Split(corsCfg.AllowedHeaders),
		AllowCredentials: corsCfg.AllowCredentials,
		MaxAge:           corsCfg.MaxAge,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Put("/{id}", h.UpdateUser)
			r.Get("/{id}/expenses", h.ListUserExpenses)
			r.Get("/{id}/approvals", h.ListUserApprovals)
			r.Get("/{id}/pending", h.ListUserPending)
			r.Get("/{id}/notifications", h.ListNotifications)
			r.Post("/{id}/notifications/read", h.MarkNotificationsRead)
		})

		r.Get("/managers", h.ListManagers)

		// Expense routes
		r.Route("/expenses", func(r chi.Router) {
			r.Post("/", h.SubmitExpense)
			r.Get("/{id}", h.GetExpense)
			r.Post("/{id}/approve", h.ApproveExpense)
			r.Post("/{id}/reject", h.RejectExpense)
		})

		// Currency routes
		r.Route("/currencies", func(r chi.Router) {
			r.Get("/", h.ListCurrencies)
			r.Get("/convert", h.ConvertCurrency)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
