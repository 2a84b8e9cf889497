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

	"go.uber.org/zap"

	"github.com/capitalize-ai/sqlchat/internal/agent"
	"github.com/capitalize-ai/sqlchat/internal/auth"
	"github.com/capitalize-ai/sqlchat/internal/cache"
	"github.com/capitalize-ai/sqlchat/internal/codeact"
	"github.com/capitalize-ai/sqlchat/internal/config"
	"github.com/capitalize-ai/sqlchat/internal/database"
	"github.com/capitalize-ai/sqlchat/internal/handler"
	"github.com/capitalize-ai/sqlchat/internal/handoff"
	"github.com/capitalize-ai/sqlchat/internal/llm"
	natsclient "github.com/capitalize-ai/sqlchat/internal/nats"
	"github.com/capitalize-ai/sqlchat/internal/semantic"
	"github.com/capitalize-ai/sqlchat/internal/service"
	"github.com/capitalize-ai/sqlchat/internal/store"
	"github.com/capitalize-ai/sqlchat/pkg/logger"
	"github.com/capitalize-ai/sqlchat/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.ForEnv(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server", zap.String("db_type", cfg.DBType), zap.String("llm_provider", cfg.LLMProvider))

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "sqlchat", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Key-value store for handoff, result cache and history
	kv := openStore(ctx, cfg, log)
	defer kv.Close()

	// Database adapter, constructed once and shared by every turn
	db, err := database.New(database.Config{
		Type:        cfg.DBType,
		PostgresDSN: cfg.PostgresDSN,
		MySQLDSN:    cfg.MySQLDSN,
		SQLitePath:  cfg.SQLitePath,
		MaxConns:    cfg.DBMaxConns,
	})
	if err != nil {
		log.Fatal("failed to create database adapter", zap.Error(err))
	}
	if err := db.Connect(ctx); err != nil {
		log.Error("failed to connect to database, queries will fail until it is reachable", zap.Error(err))
	}
	defer db.Close()

	// Semantic layer
	registry, err := semantic.LoadRegistry(cfg.SemanticFile)
	if err != nil {
		log.Fatal("failed to load semantic registry", zap.Error(err), zap.String("path", cfg.SemanticFile))
	}
	layer := semantic.NewLayer(db, registry)

	// Initialize LLM client
	var llmClient llm.Client
	if cfg.LLMAPIKey != "" {
		llmClient, err = llm.NewClient(llm.Provider(cfg.LLMProvider), llm.Options{
			APIKey:      cfg.LLMAPIKey,
			BaseURL:     cfg.LLMBaseURL,
			Model:       cfg.LLMModel,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
		})
		if err != nil {
			log.Warn("failed to create LLM client, chat disabled", zap.Error(err))
			llmClient = nil
		}
	} else {
		log.Warn("LLM_API_KEY not set, chat disabled")
	}

	// Initialize services
	results := cache.NewResultCache(kv, cfg.CacheTTL)
	history := cache.NewHistoryStore(kv, cfg.CacheTTL)
	executor := codeact.NewExecutor(db, results, log)
	engine := agent.NewSupervisorEngine(llmClient, executor, layer, agent.SupervisorConfig{
		MaxIterations: cfg.AgentMaxIterations,
	}, log)
	chatSvc := service.NewChatService(engine, history, service.ChatConfig{
		StreamMode: cfg.StreamMode,
	}, log.Named("chat"))
	streams := handoff.New(kv)
	issuer := auth.NewIssuer(auth.Config{
		Enabled:    cfg.AuthEnabled,
		Secret:     cfg.JWTSecret,
		Expiration: cfg.JWTExpiration,
		Username:   cfg.AdminUsername,
		Password:   cfg.AdminPassword,
	})

	// Initialize handlers
	router := handler.NewRouter(handler.Handlers{
		Health: handler.NewHealthHandler(db, kv),
		Chat:   handler.NewChatHandler(streams, log),
		Stream: handler.NewStreamHandler(streams, chatSvc, log),
		Schema: handler.NewSchemaHandler(layer, log),
		Auth:   handler.NewAuthHandler(issuer, log),
	}, handler.RouterConfig{
		AuthEnabled:       cfg.AuthEnabled,
		JWTSecret:         cfg.JWTSecret,
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	}, log)

	// Create HTTP server. WriteTimeout stays zero by default so long SSE
	// streams are not cut off.
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
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

// openStore returns the configured key-value store. When the NATS backend is
// unreachable the process keeps serving from memory.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) store.Store {
	sweep := time.Minute
	if cfg.StoreBackend == "memory" {
		log.Info("using in-memory store")
		return store.NewMemoryStore(sweep)
	}

	client, err := natsclient.Connect(ctx, natsclient.Config{
		URL:            cfg.NATSURL,
		CAFile:         cfg.NATSCAFile,
		CertFile:       cfg.NATSCertFile,
		KeyFile:        cfg.NATSKeyFile,
		Token:          cfg.NATSToken,
		ConnectTimeout: cfg.StoreTimeout,
	}, log)
	if err != nil {
		log.Warn("NATS unavailable, falling back to in-memory store", zap.Error(err))
		return store.NewMemoryStore(sweep)
	}

	maxTTL := cfg.CacheTTL
	if maxTTL < handoff.PendingTTL {
		maxTTL = handoff.PendingTTL
	}
	kv, err := natsclient.NewKVStore(ctx, client, natsclient.KVConfig{
		Bucket:    cfg.NATSKVBucket,
		MaxTTL:    maxTTL,
		OpTimeout: cfg.StoreTimeout,
	})
	if err != nil {
		client.Close()
		log.Warn("NATS key-value bucket unavailable, falling back to in-memory store", zap.Error(err))
		return store.NewMemoryStore(sweep)
	}

	log.Info("using NATS key-value store", zap.String("bucket", cfg.NATSKVBucket))
	return kv
}
