// Package http assembles the engine's HTTP surface.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"proofpals/pkg/platform/httputil"
	"proofpals/pkg/platform/middleware"
)

// Registrar mounts a module's routes on a router group.
type Registrar interface {
	Register(r chi.Router)
}

// Deps are the handler groups the router mounts.
type Deps struct {
	Auth   *middleware.Auth
	Logger *slog.Logger

	// Reviewer mounts under /api/v1 behind reviewer auth: credentials,
	// submission reads, votes.
	Reviewer []Registrar
	// Admin mounts under /api/v1/admin behind admin auth: rings,
	// submission creation, escalations, audit log.
	Admin []Registrar
}

// New builds the router: health and metrics in the clear, everything else
// versioned under /api/v1 and gated by role.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	if deps.Logger != nil {
		r.Use(middleware.Logger(deps.Logger))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireRole(middleware.RoleReviewer))
			for _, reg := range deps.Reviewer {
				reg.Register(r)
			}
		})
		r.Route("/admin", func(r chi.Router) {
			r.Use(deps.Auth.RequireRole(middleware.RoleAdmin))
			for _, reg := range deps.Admin {
				reg.Register(r)
			}
		})
	})
	return r
}
