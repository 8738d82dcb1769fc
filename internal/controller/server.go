// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"projectplane/internal/controller/handlers"
	"projectplane/internal/controller/middleware"
)

// Options tunes the API surface of the server.
type Options struct {
	// RequestsPerSecond throttles mutating requests per user. Zero means
	// unlimited.
	RequestsPerSecond float64
	RequestBurst      int

	// SystemSecret guards the internal tenant configuration endpoint.
	SystemSecret string
}

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server.
func New(addr string, store handlers.StoreFactory, commands handlers.CommandClient, opts Options, metricsHandler http.Handler, log *slog.Logger) *Server {
	latch := middleware.NewAdminLatch(store)
	h := handlers.New(store, commands, latch, log)

	authed := middleware.Principal(store, latch)
	limited := middleware.RateLimit(opts.RequestsPerSecond, opts.RequestBurst)
	mutating := func(hf http.HandlerFunc) http.Handler {
		return authed(limited(hf))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Health)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	// Public authenticated apis. Reads skip the rate limiter.
	mux.Handle("GET /api/projects", authed(http.HandlerFunc(h.ListProjects)))
	mux.Handle("GET /api/projects/{id}", authed(http.HandlerFunc(h.GetProject)))
	mux.Handle("POST /api/projects", mutating(h.CreateProject))
	mux.Handle("PUT /api/projects/{id}", mutating(h.UpdateProject))
	mux.Handle("DELETE /api/projects/{id}", mutating(h.DeleteProject))

	mux.Handle("POST /api/projects/{id}/users", mutating(h.CreateProjectUser))
	mux.Handle("PUT /api/projects/{id}/users/{userId}", mutating(h.UpdateProjectUser))
	mux.Handle("POST /api/users", mutating(h.CreateUser))
	mux.Handle("PUT /api/users/{id}", mutating(h.UpdateUser))

	mux.Handle("GET /orchestrator/commands/{id}", authed(http.HandlerFunc(h.GetCommandStatus)))

	// Internal endpoints.
	// These are called by operators during tenant onboarding.
	// These should run on a separate port or strict network rules.
	mux.Handle("POST /internal/tenants", middleware.RequireInternalAuth(opts.SystemSecret)(http.HandlerFunc(h.ConfigureTenant)))

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      middleware.RequestID(mux),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
