// Prompted-simulation chat backend.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/promptsim/promptsim/internal/api"
	"github.com/promptsim/promptsim/internal/audit"
	"github.com/promptsim/promptsim/internal/chat"
	"github.com/promptsim/promptsim/internal/config"
	"github.com/promptsim/promptsim/internal/middleware"
	"github.com/promptsim/promptsim/internal/session"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	auditLog, err := audit.New(audit.Config{
		Dir:       cfg.Audit.Dir,
		QueueSize: cfg.Audit.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize audit log", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := auditLog.Close(); closeErr != nil {
			slog.Error("Failed to close audit log", "error", closeErr)
		}
	}()
	slog.Info("Audit log ready", "dir", cfg.Audit.Dir)

	codec, err := session.NewCodec(cfg.SessionSecret)
	if err != nil {
		slog.Error("Failed to initialize token codec", "error", err)
		os.Exit(1)
	}

	authenticator, err := session.NewAuthenticator(cfg.AuthPassword)
	if err != nil {
		slog.Error("Failed to initialize authenticator", "error", err)
		os.Exit(1)
	}

	chatClient := chat.NewClient(chat.Config{
		URL:     cfg.Upstream.URL,
		APIKey:  cfg.Upstream.APIKey,
		Model:   cfg.Upstream.Model,
		Timeout: cfg.Upstream.Timeout,
	})
	slog.Info("Upstream chat proxy configured", "endpoint", chatClient.Endpoint())

	handler := api.NewHandler(cfg, codec, authenticator, auditLog, chatClient)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	corsOrigins := []string{"*"}
	if cfg.FrontendURL != "" {
		corsOrigins = []string{cfg.FrontendURL}
	}
	r.Use(middleware.CORS(corsOrigins))

	handler.RegisterRoutes(r)

	// Create server. WriteTimeout exceeds the upstream bound so slow
	// proxy replies surface as 504s, not dropped connections.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Upstream.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
