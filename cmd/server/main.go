package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"merchiq.com/analytics-agent/internal/api"
	"merchiq.com/analytics-agent/internal/cache"
	"merchiq.com/analytics-agent/internal/config"
	"merchiq.com/analytics-agent/internal/core"
	"merchiq.com/analytics-agent/internal/llm"
	"merchiq.com/analytics-agent/internal/memory"
	"merchiq.com/analytics-agent/internal/shopify"
	"merchiq.com/analytics-agent/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()
	cfg := config.AppConfig

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Text-generation collaborator: Gemini when configured, otherwise the
	// deterministic mock.
	var generator llm.Generator
	if cfg.GoogleAPIKey != "" {
		geminiClient, err := llm.NewGeminiClient(ctx, cfg.GoogleAPIKey, cfg.LLMModel, cfg.LLMTemperature, cfg.MaxRetries, logger)
		if err != nil {
			logger.Fatal("gemini_client_init_failed", zap.Error(err))
		}
		defer geminiClient.Close()
		generator = geminiClient
	} else {
		logger.Warn("gemini_not_configured", zap.String("message", "GOOGLE_API_KEY not set, using mock responses"))
		generator = llm.NewMock()
	}

	// Shared stores: cache (redis preferred), conversation memory, and the
	// optional query-history audit log.
	cacheManager := cache.New(ctx, cfg.RedisURL, time.Duration(cfg.CacheTTLSeconds)*time.Second, logger)
	defer cacheManager.Close()

	conversations := memory.NewConversationStore(logger)

	var history *store.QueryHistoryStore
	if cfg.HistoryDB != "" {
		history, err = store.NewQueryHistoryStore(cfg.HistoryDB)
		if err != nil {
			logger.Fatal("history_store_init_failed", zap.Error(err))
		}
		defer history.Close()
	}

	orchestrator := core.NewOrchestrator(core.Deps{
		Classifier:    core.NewIntentClassifier(generator, logger),
		Generator:     core.NewQueryGenerator(generator, logger),
		Validator:     core.NewQueryValidator(logger),
		Formatter:     core.NewResponseFormatter(generator, logger),
		Cache:         cacheManager,
		Conversations: conversations,
		History:       history,
		Executors: func(storeDomain, accessToken string) core.QueryExecutor {
			return shopify.NewClient(storeDomain, accessToken, cfg.ShopifyAPIVersion, logger)
		},
		Logger: logger,
	})

	apiHandler := api.NewAPIHandler(
		orchestrator,
		core.NewQueryValidator(logger),
		conversations,
		cacheManager,
		history,
		cfg.ServiceJWTSecret,
		api.HealthInfo{
			GeminiConfigured:  cfg.GoogleAPIKey != "",
			RedisConfigured:   cfg.RedisURL != "",
			HistoryConfigured: history != nil,
		},
		logger,
	)
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server_starting", zap.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server_listen_failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server_forced_shutdown", zap.Error(err))
	}

	logger.Info("server_exited")
}

func buildLogger(level string) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if level == "DEBUG" {
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zapConfig.Build()
}
