// Package main is the entry point for the API server.
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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-orchestrator/internal/config"
	"github.com/capitalize-ai/chat-orchestrator/internal/handler"
	"github.com/capitalize-ai/chat-orchestrator/internal/llm"
	"github.com/capitalize-ai/chat-orchestrator/internal/middleware"
	natsclient "github.com/capitalize-ai/chat-orchestrator/internal/nats"
	"github.com/capitalize-ai/chat-orchestrator/internal/orchestrator"
	"github.com/capitalize-ai/chat-orchestrator/internal/service"
	"github.com/capitalize-ai/chat-orchestrator/internal/tools"
	"github.com/capitalize-ai/chat-orchestrator/pkg/logger"
	"github.com/capitalize-ai/chat-orchestrator/pkg/tracing"
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

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chat-orchestrator", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS when the event sink is configured
	var publisher orchestrator.EventPublisher = orchestrator.NoopPublisher{}
	var events handler.ConnectionChecker
	if cfg.NATSURL != "" {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		eventStream := natsclient.NewEventStream(natsClient)
		if err := eventStream.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
		publisher = eventStream
		events = natsClient
	} else {
		log.Info("NATS_URL not set, chat events are not published")
	}

	// Initialize services
	selector := llm.NewSelector(llm.Options{
		OpenRouterBaseURL:     cfg.OpenRouterBaseURL,
		AnthropicToolsEnabled: cfg.AnthropicToolsEnabled,
	})
	orch := orchestrator.New(publisher, log, orchestrator.WithMaxSteps(cfg.MaxSteps))

	chatSvc := service.NewChatService(selector, tools.NewBuilder(tools.Deps{}), orch, service.ChatConfig{
		EncryptionSecret:    cfg.EncryptionSecretKey,
		DefaultSystemPrompt: cfg.SystemPrompt,
		RequestTimeout:      cfg.RequestTimeout,
	}, log)
	companionSvc := service.NewCompanionService(selector, service.CompanionConfig{
		EncryptionSecret: cfg.EncryptionSecretKey,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		TitleModel:       cfg.TitleModel,
		MemoryModel:      cfg.MemoryModel,
	}, log)

	ddg, err := service.NewDuckDuckGo()
	if err != nil {
		log.Fatal("failed to create search tool", zap.Error(err))
	}
	searchSvc := service.NewSearchService(ddg, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(events)
	chatHandler := handler.NewChatHandler(chatSvc, log)
	keyHandler := handler.NewKeyHandler(handler.KeyConfig{
		EncryptionSecret: cfg.EncryptionSecretKey,
		CookieSecure:     cfg.CookieSecure,
	}, log)
	companionHandler := handler.NewCompanionHandler(companionSvc, searchSvc, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.JWTSecret != "" {
			r.Use(middleware.Auth(cfg.JWTSecret))
		}
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/chat", chatHandler.Chat)

		r.Post("/encrypt", keyHandler.Store)
		r.Delete("/encrypt", keyHandler.Clear)

		r.Post("/completion", companionHandler.Title)
		r.Post("/memory", companionHandler.Memory)
		r.Post("/search", companionHandler.Search)
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
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
