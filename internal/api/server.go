// Package api provides the HTTP API server for resque.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/narvanalabs/resque/internal/api/handlers"
	"github.com/narvanalabs/resque/internal/api/health"
	"github.com/narvanalabs/resque/internal/api/middleware"
	"github.com/narvanalabs/resque/internal/bus"
	"github.com/narvanalabs/resque/internal/events"
	"github.com/narvanalabs/resque/internal/store"
	"github.com/narvanalabs/resque/pkg/config"
)

// Version is reported by /health. Release builds set it with -ldflags -X.
var Version = "dev"

// requestTimeout bounds every route except the event stream.
const requestTimeout = 60 * time.Second

// Dependencies are the collaborators the HTTP layer forwards to.
type Dependencies struct {
	Bus    *bus.Bus
	Store  store.Provider
	Broker *events.Broker
	Tokens middleware.TokenValidator
	Health *health.Checker
	Logger *slog.Logger
}

// Server is the resque HTTP API.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	deps       Dependencies
	logger     *slog.Logger
}

// NewServer builds the router and the http.Server around it.
func NewServer(cfg config.ServerConfig, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Health == nil {
		deps.Health = health.NewChecker(Version)
	}

	s := &Server{
		deps:   deps,
		logger: deps.Logger,
	}
	s.setupRouter()
	s.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// setupRouter mounts middleware, the public auth routes and the /v1 API.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery(s.logger))

	r.Get("/health", s.deps.Health.Handler())

	authHandler := handlers.NewAuthHandler(s.deps.Bus, s.deps.Store, s.logger)
	r.Route("/auth", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(requestTimeout))
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(s.deps.Tokens, s.logger).Authenticate)

		if s.deps.Broker != nil {
			stream := handlers.NewEventStreamHandler(s.deps.Broker, s.deps.Store, s.logger)
			r.Get("/events", stream.Stream)
		}

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(requestTimeout))

			userHandler := handlers.NewUserHandler(s.deps.Bus, s.deps.Store, s.logger)
			r.Route("/users", func(r chi.Router) {
				r.Get("/me", userHandler.Me)
				r.Delete("/{userID}", userHandler.Deactivate)
			})

			projectHandler := handlers.NewProjectHandler(s.deps.Bus, s.deps.Store, s.logger)
			requirementHandler := handlers.NewRequirementHandler(s.deps.Bus, s.deps.Store, s.logger)
			r.Route("/projects", func(r chi.Router) {
				r.Post("/", projectHandler.Create)
				r.Get("/", projectHandler.List)
				r.Route("/{projectID}", func(r chi.Router) {
					r.Get("/", projectHandler.Get)
					r.Patch("/status", projectHandler.ChangeStatus)

					r.Post("/invitations", projectHandler.Invite)
					r.Post("/invitations/accept", projectHandler.Accept)
					r.Post("/invitations/revoke", projectHandler.Revoke)

					r.Put("/members/{userID}", projectHandler.ChangeMemberRole)
					r.Delete("/members/{userID}", projectHandler.RemoveMember)

					r.Get("/requirements", requirementHandler.List)
					r.Post("/requirements", requirementHandler.Create)
				})
			})

			r.Route("/requirements/{requirementID}", func(r chi.Router) {
				r.Get("/", requirementHandler.Get)
				r.Patch("/status", requirementHandler.ChangeStatus)
				r.Patch("/priority", requirementHandler.SetPriority)
				r.Put("/assignee", requirementHandler.Assign)

				r.Post("/tags", requirementHandler.Tag)
				r.Delete("/tags/{tag}", requirementHandler.Untag)

				r.Post("/predecessors", requirementHandler.Link)
				r.Delete("/predecessors/{predecessorID}", requirementHandler.Unlink)

				r.Post("/comments", requirementHandler.AddComment)
				r.Patch("/comments/{commentID}", requirementHandler.EditComment)
			})
		})
	})

	s.router = r
}

// Start serves until ctx is done or the server is shut down.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting API server", "addr", s.httpServer.Addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown drains in-flight requests for at most 30 seconds.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// HTTPServer returns the underlying server for shutdown coordination.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Router exposes the mux to handler tests.
func (s *Server) Router() chi.Router {
	return s.router
}
