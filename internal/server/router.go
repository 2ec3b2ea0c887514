package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds the database probe of the health endpoint.
const healthCheckTimeout = 5 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/devices", func(r chi.Router) {
		r.Get("/", s.handleListDevices)
		r.Post("/", s.handleCreateDevice)

		r.Route("/{deviceID}", func(r chi.Router) {
			r.Get("/", s.handleGetDevice)
			r.Get("/drivers", s.handleListDrivers)
			r.Get("/drivers/{driverIdentifier}/signals", s.handleListSignals)
			r.Get("/ws/token", s.handleWSToken)
			r.Get("/ws", s.handleWebsocket)
		})
	})

	r.Get("/timeseries", s.handleGetTimeseries)

	return r
}

// handleHealth reports server and database health. The database probe
// failing turns the response into a 503 so load balancers stop routing
// ingest traffic to an instance that cannot persist it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.db.HealthCheck(ctx); err != nil {
		s.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "error",
			"message": "database unreachable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"message": "",
	})
}
