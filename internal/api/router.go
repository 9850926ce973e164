package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	mw "github.com/kiranshivaraju/robotrainer/internal/api/middleware"
	"github.com/kiranshivaraju/robotrainer/internal/api/response"
)

// ScopeWrite is required for routes that create or change simulations.
const ScopeWrite = "write"

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler      http.HandlerFunc
	CreateSimulation   http.HandlerFunc
	ListSimulations    http.HandlerFunc
	GetSimulation      http.HandlerFunc
	SimulationStatus   http.HandlerFunc
	StartSimulation    http.HandlerFunc
	CompleteSimulation http.HandlerFunc
	SimulationLogs     http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Route("/api/v1/simulations", func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/", orNotImplemented(deps.ListSimulations))
		r.Get("/{id}", orNotImplemented(deps.GetSimulation))
		r.Get("/{id}/status", orNotImplemented(deps.SimulationStatus))
		r.Get("/{id}/logs", orNotImplemented(deps.SimulationLogs))

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(ScopeWrite))

			r.Post("/", orNotImplemented(deps.CreateSimulation))
			r.Put("/{id}/start", orNotImplemented(deps.StartSimulation))
			r.Put("/{id}/complete", orNotImplemented(deps.CompleteSimulation))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
