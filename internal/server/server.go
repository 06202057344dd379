// Package server wires the router, middleware, and handlers, and owns the
// HTTP server lifecycle. It is the composition root: every dependency chain
// is assembled here, main.go only loads config and calls Start.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/justanagent/auth-service/internal/auth"
	"github.com/justanagent/auth-service/internal/config"
	"github.com/justanagent/auth-service/internal/handler"
	"github.com/justanagent/auth-service/internal/mailer"
	"github.com/justanagent/auth-service/internal/middleware"
	sqliteRepo "github.com/justanagent/auth-service/internal/repository/sqlite"
	"github.com/justanagent/auth-service/internal/service"
)

// Server holds the router and the resources it owns. The database
// connection is closed during graceful shutdown.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New assembles the full dependency chain: database, credential services,
// auth service, handlers, routes. The mail sender is injected so main can
// pick SMTP or the logging fallback.
func New(cfg *config.Config, mail mailer.Sender, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(mail); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

func (s *Server) setupRoutes(mail mailer.Sender) error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	authService := service.NewAuthService(
		s.db,
		tokens,
		auth.NewPasswordService(),
		mail,
		service.Options{
			FrontendURL: s.cfg.FrontendURL,
			Production:  s.cfg.IsProduction(),
		},
		s.logger,
	)

	providers := make(map[string]auth.Provider)
	if s.cfg.Google.Configured() {
		providers["google"] = auth.NewGoogleProvider(
			s.cfg.Google.ClientID, s.cfg.Google.ClientSecret, s.cfg.Google.CallbackURL)
	}
	if s.cfg.GitHub.Configured() {
		providers["github"] = auth.NewGitHubProvider(
			s.cfg.GitHub.ClientID, s.cfg.GitHub.ClientSecret, s.cfg.GitHub.CallbackURL)
	}
	for name := range providers {
		s.logger.Info("oauth provider enabled", slog.String("provider", name))
	}

	authHandler := handler.NewAuthHandler(
		authService, providers, s.cfg.FrontendURL, s.cfg.IsProduction(), s.logger)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/verify-otp", authHandler.HandleVerifyOTP)
		r.Post("/resend-otp", authHandler.HandleResendOTP)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		r.Post("/forgot-password", authHandler.HandleForgotPassword)
		r.Post("/reset-password", authHandler.HandleResetPassword)
		r.Get("/verify-reset-token/{token}", authHandler.HandleVerifyResetToken)

		r.With(auth.RequireAuth(tokens)).Get("/profile", authHandler.HandleProfile)

		r.Get("/{provider}", authHandler.HandleOAuthStart)
		r.Get("/{provider}/callback", authHandler.HandleOAuthCallback)
	})

	return nil
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully:
// stop accepting connections, drain in-flight requests, close the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("env", s.cfg.AppEnv),
			slog.String("database", s.cfg.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped")
		return nil
	}
}

// Router exposes the configured mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
