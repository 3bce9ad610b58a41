// Package server wires handlers, middleware and routes into one HTTP
// server. It is the composition root: every dependency chain (store →
// service → handler) is assembled here, and main.go only supplies config.
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

	"github.com/rulescraft/cursorrulescraft/internal/auth"
	"github.com/rulescraft/cursorrulescraft/internal/github"
	"github.com/rulescraft/cursorrulescraft/internal/handler"
	"github.com/rulescraft/cursorrulescraft/internal/middleware"
	sqliteRepo "github.com/rulescraft/cursorrulescraft/internal/repository/sqlite"
	"github.com/rulescraft/cursorrulescraft/internal/service"
	"github.com/rulescraft/cursorrulescraft/internal/webhook"
)

// Config holds everything the server needs from the environment.
type Config struct {
	Port   int
	DBPath string

	// WebhookSecret verifies identity-provider deliveries
	// ("whsec_..." or raw base64).
	WebhookSecret string

	// JWTSecret signs session tokens.
	JWTSecret string

	// TokenEncryptionKey is a 64-char hex string (32 bytes) for encrypting
	// stored GitHub tokens.
	TokenEncryptionKey string

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	// AppURL is where the browser is sent after an OAuth round-trip.
	AppURL string

	// SecureCookies marks session and state cookies Secure. Off for local
	// plain-HTTP development.
	SecureCookies bool
}

// Server owns the router and the database handle; the handle is closed on
// shutdown so the WAL is flushed cleanly.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New opens the database and assembles the full route tree.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	verifier, err := webhook.NewVerifier(s.config.WebhookSecret)
	if err != nil {
		return fmt.Errorf("configuring webhook verifier: %w", err)
	}
	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("configuring session tokens: %w", err)
	}
	cipher, err := auth.NewTokenCipher(s.config.TokenEncryptionKey)
	if err != nil {
		return fmt.Errorf("configuring token encryption: %w", err)
	}

	ghClient := github.NewClient()
	provider := auth.NewGitHubProvider(
		s.config.GitHubClientID,
		s.config.GitHubClientSecret,
		s.config.GitHubCallbackURL,
	)

	lifecycle := service.NewLifecycleService(s.db, s.logger)
	userSync := service.NewUserSyncService(s.db, lifecycle, s.logger)
	integrations := service.NewIntegrationService(s.db, ghClient, cipher, s.logger)
	repos := service.NewRepoService(s.db, ghClient, cipher, s.logger)
	workspaces := service.NewWorkspaceService(s.db, s.logger)
	rules := service.NewRuleService(s.db, s.logger)

	webhookHandler := handler.NewWebhookHandler(verifier, userSync, s.logger)
	authHandler := handler.NewAuthHandler(handler.AuthHandlerConfig{
		Provider:     provider,
		Tokens:       tokens,
		Integrations: integrations,
		Users:        s.db,
		Lifecycle:    lifecycle,
		GitHub:       ghClient,
		AppURL:       s.config.AppURL,
		SecureCookie: s.config.SecureCookies,
		Logger:       s.logger,
	})
	repoHandler := handler.NewRepoHandler(repos, s.logger)
	workspaceHandler := handler.NewWorkspaceHandler(workspaces, s.logger)
	ruleHandler := handler.NewRuleHandler(rules, s.logger)

	requireAuth := auth.RequireAuth(tokens)

	// Unauthenticated surface: the signed webhook intake and the OAuth
	// round-trip (the callback authenticates via state + code exchange).
	s.router.Post("/api/webhooks", webhookHandler.HandleDelivery)
	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/github/authorize", authHandler.HandleAuthorize)
		r.Get("/github/callback", authHandler.HandleCallback)
		r.Post("/logout", authHandler.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/github/status", authHandler.HandleStatus)
			r.Get("/github/disconnect", authHandler.HandleDisconnect)
		})
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(requireAuth)

		r.Get("/me", authHandler.HandleMe)

		r.Route("/workspaces", func(r chi.Router) {
			r.Get("/", workspaceHandler.HandleList)
			r.Post("/", workspaceHandler.HandleCreate)
			r.Get("/{id}", workspaceHandler.HandleGet)
			r.Put("/{id}", workspaceHandler.HandleRename)
			r.Delete("/{id}", workspaceHandler.HandleDelete)

			r.Get("/{id}/members", workspaceHandler.HandleListMembers)
			r.Post("/{id}/members", workspaceHandler.HandleAddMember)
			r.Put("/{id}/members/{userId}", workspaceHandler.HandleUpdateMemberRole)
			r.Delete("/{id}/members/{userId}", workspaceHandler.HandleRemoveMember)
		})

		r.Route("/repositories", func(r chi.Router) {
			r.Get("/", repoHandler.HandleList)
			r.Get("/github/available", repoHandler.HandleListAvailable)
			r.Post("/github/connect", repoHandler.HandleConnect)
			r.Post("/{id}/sync", repoHandler.HandleSync)
			r.Delete("/{id}", repoHandler.HandleDisconnect)

			r.Get("/{id}/rules", ruleHandler.HandleList)
			r.Post("/{id}/rules", ruleHandler.HandleCreate)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/{id}", ruleHandler.HandleGet)
			r.Put("/{id}", ruleHandler.HandleUpdate)
			r.Delete("/{id}", ruleHandler.HandleDelete)
		})
	})

	return nil
}

// Start runs the server until SIGINT/SIGTERM, then drains in-flight
// requests and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
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
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
