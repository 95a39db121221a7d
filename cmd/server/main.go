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

	"github.com/resumechat/backend/internal/api"
	"github.com/resumechat/backend/internal/chat"
	"github.com/resumechat/backend/internal/config"
	"github.com/resumechat/backend/internal/index"
	"github.com/resumechat/backend/internal/intake"
	"github.com/resumechat/backend/internal/llm"
	"github.com/resumechat/backend/internal/rag"
	"github.com/resumechat/backend/internal/storage"
	"github.com/resumechat/backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	// Conversation store: volatile by default, SQLite behind the same
	// interface when durability is wanted.
	var conversationStore store.Store
	switch cfg.StoreBackend {
	case "sqlite":
		conversationStore, err = store.NewSQLiteStore(cfg.StoreDatabaseURL)
		if err != nil {
			logger.Fatal("failed to initialize conversation store", zap.Error(err))
		}
	default:
		conversationStore = store.NewMemoryStore()
	}
	defer conversationStore.Close()

	uploads, err := storage.NewLocal(cfg.UploadDir, logger)
	if err != nil {
		logger.Fatal("failed to initialize upload storage", zap.Error(err))
	}

	chunkIndex, err := index.NewSQLiteIndex(cfg.IndexDatabaseURL, logger)
	if err != nil {
		logger.Fatal("failed to initialize chunk index", zap.Error(err))
	}
	defer chunkIndex.Close()

	llmService, err := llm.New(context.Background(), cfg.GeminiAPIKey, logger)
	if err != nil {
		logger.Fatal("failed to initialize LLM service", zap.Error(err))
	}
	defer llmService.Close()

	ragService := rag.NewService(llmService, chunkIndex, uploads, rag.Options{
		ChunkSize:           cfg.ChunkSize,
		ChunkOverlap:        cfg.ChunkOverlap,
		TopK:                cfg.SearchTopK,
		SimilarityThreshold: cfg.SimilarityThreshold,
	}, logger)

	chatService := chat.NewService(conversationStore, ragService, ragService, cfg.StageTimeout, logger)

	// The chat service doubles as the pipeline's notifier: upload outcomes
	// land as system messages in the owning conversation.
	pipeline := intake.NewPipeline(uploads, ragService, chatService,
		cfg.MaxUploadBytes, cfg.StageTimeout, cfg.UploadProcessRetries, logger)

	apiHandler := api.NewAPIHandler(chatService, pipeline, ragService, ragService, ragService,
		uploads, cfg.MaxUploadBytes, cfg.StageTimeout, logger)
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // generation calls can take a while
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Give active connections time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exited gracefully")
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "DEBUG" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
