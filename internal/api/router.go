package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Relay WebSocket. Deliberately unauthenticated at the transport level:
	// the mobile joins by session code before it holds any token, and the
	// protocol gates every action on session membership.
	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/relay"
	}
	r.Get(wsPath, s.handleRelaySocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// System metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Pairing session endpoints
			r.Route("/relay/sessions", func(r chi.Router) {
				r.Post("/", s.handleMintSession)
				r.Get("/", s.handleListSessions)
				r.Get("/{id}", s.handleGetSession)
			})

			// Lab directory
			r.Get("/labs", s.handleListLabs)

			// Audit trail (admin only)
			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/audit", s.handleListAudit)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{}

	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			components["database"] = "unhealthy"
		} else {
			components["database"] = "ok"
		}
	}
	if s.mqtt != nil {
		if s.mqtt.IsConnected() {
			components["mqtt"] = "ok"
		} else {
			components["mqtt"] = "disconnected"
		}
	}
	if s.telemetry != nil {
		if s.telemetry.IsConnected() {
			components["influxdb"] = "ok"
		} else {
			components["influxdb"] = "disconnected"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"components": components,
	})
}
