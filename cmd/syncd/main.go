// Package main is the entry point for the chat sync daemon.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Shabbin/teaching-platform-sub001/internal/backend"
	"github.com/Shabbin/teaching-platform-sub001/internal/config"
	"github.com/Shabbin/teaching-platform-sub001/internal/engine"
	"github.com/Shabbin/teaching-platform-sub001/internal/handler"
	"github.com/Shabbin/teaching-platform-sub001/internal/middleware"
	"github.com/Shabbin/teaching-platform-sub001/internal/realtime"
	"github.com/Shabbin/teaching-platform-sub001/pkg/logger"
	"github.com/Shabbin/teaching-platform-sub001/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if cfg.UserID == "" {
		log.Error("SESSION_USER_ID is required")
		os.Exit(1)
	}
	log = log.WithSession(cfg.UserID, cfg.Role)
	log.Info("starting chat sync daemon")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chat-sync-daemon", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect the realtime transport
	rt, err := realtime.Connect(realtime.Config{
		URL:      cfg.RealtimeURL,
		Token:    cfg.RealtimeToken,
		CAFile:   cfg.RealtimeCAFile,
		CertFile: cfg.RealtimeCertFile,
		KeyFile:  cfg.RealtimeKeyFile,
	}, cfg.UserID, log)
	if err != nil {
		log.Error("failed to connect realtime transport", zap.Error(err))
		os.Exit(1)
	}
	defer rt.Close()

	// Initialize the engine and wire inbound events into it
	backendClient := backend.NewClient(cfg.BackendBaseURL, cfg.BackendToken, log)
	eng := engine.New(cfg.UserID, cfg.Role, backendClient, rt, log)
	defer eng.Close()

	if err := rt.Listen(eng); err != nil {
		log.Error("failed to subscribe to realtime events", zap.Error(err))
		os.Exit(1)
	}

	// Initial snapshot plus periodic reconciliation of server-side state.
	go func() {
		if err := eng.SyncConversations(ctx); err != nil {
			log.Warn("initial conversation sync failed", zap.Error(err))
		}
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for range ticker.C {
			if err := eng.SyncConversations(ctx); err != nil {
				log.Warn("periodic conversation sync failed", zap.Error(err))
			}
		}
	}()

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(rt)
	conversationHandler := handler.NewConversationHandler(eng, log)
	threadHandler := handler.NewThreadHandler(eng, log)
	streamHandler := handler.NewStreamHandler(eng, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret, cfg.UserID))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/stream", streamHandler.Stream)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)
			r.Post("/refresh", conversationHandler.Refresh)
		})

		r.Route("/requests/{id}", func(r chi.Router) {
			r.Post("/approve", conversationHandler.Approve)
			r.Post("/reject", conversationHandler.Reject)
		})

		r.Route("/threads/{id}", func(r chi.Router) {
			r.Get("/messages", threadHandler.Messages)
			r.Post("/messages", threadHandler.Send)
			r.Post("/read", threadHandler.Read)
			r.Post("/join", threadHandler.Join)
			r.Post("/leave", threadHandler.Leave)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down daemon")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("daemon stopped")
}
