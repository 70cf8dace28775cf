package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"Laira/internal/api"
	"Laira/internal/chat"
	"Laira/internal/chunk"
	"Laira/internal/config"
	"Laira/internal/embed"
	"Laira/internal/embedding"
	"Laira/internal/extract"
	"Laira/internal/llm"
	"Laira/internal/processing"
	"Laira/internal/vectorstore"
	"Laira/pkg/logger"
	"Laira/pkg/ratelimiter"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the configuration file")
	flag.Parse()

	// .env is optional; environment variables win either way.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.Init(level)
	appLogger := logger.New("laira")
	appLogger.Infof("Starting %s %s", cfg.App.Name, cfg.App.Version)

	ctx := context.Background()

	generator, err := llm.NewGemini(ctx, cfg.LLM.Gemini.APIKey, cfg.LLM.Gemini.Model, cfg.LLM.VisionModel)
	if err != nil {
		log.Fatalf("Failed to create Gemini client: %v", err)
	}
	defer generator.Close()

	provider, err := embedding.NewGoogleModel(ctx, cfg.Embedding.Gemini.APIKey, cfg.Embedding.Gemini.Model)
	if err != nil {
		log.Fatalf("Failed to create embedding client: %v", err)
	}

	embedder, err := embed.NewEmbedder(provider, embed.Config{
		RequestsPerMinute: cfg.Embedding.RequestsPerMinute,
		BatchSize:         cfg.Embedding.BatchSize,
		MaxRetries:        cfg.Embedding.MaxRetries,
		RetryBaseDelay:    cfg.Embedding.RetryBaseDelayDuration(),
		CacheSize:         cfg.Embedding.CacheSize,
	})
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}

	store, err := vectorstore.Connect(ctx, cfg.Milvus.Address, cfg.Milvus.VectorDim)
	if err != nil {
		log.Fatalf("Failed to connect to Milvus: %v", err)
	}
	defer store.Close()

	var analyzer extract.FigureAnalyzer
	if cfg.Processing.AnalyzeFigures {
		analyzer = generator
	}
	extractor := extract.NewExtractor(analyzer)

	chunker := chunk.NewChunker(chunk.Config{
		ChunkSize:    cfg.Processing.ChunkSize,
		ChunkOverlap: cfg.Processing.ChunkOverlap,
	})

	processor := processing.NewProcessor(extractor, chunker, embedder, store, processing.Config{
		Collection:     cfg.Milvus.DefaultCollection,
		Strategy:       cfg.Processing.ChunkStrategy,
		MaxConcurrency: cfg.Processing.MaxConcurrency,
		MinChunkSize:   cfg.Processing.MinChunkSize,
		MaxChunkSize:   cfg.Processing.MaxChunkSize,
	})

	history, err := newHistoryStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create history store: %v", err)
	}

	engine := chat.NewEngine(embedder, store, generator,
		chat.NewMemorySessionStore(history), history, chat.Config{
			Collection:         cfg.Milvus.DefaultCollection,
			NResults:           cfg.Chat.NResults,
			ContextTokenBudget: cfg.Chat.ContextTokenBudget,
			Params: llm.Params{
				Temperature:     cfg.Chat.Temperature,
				TopP:            cfg.Chat.TopP,
				TopK:            cfg.Chat.TopK,
				MaxOutputTokens: cfg.Chat.MaxOutputTokens,
			},
		})

	var limiter ratelimiter.RateLimiter
	if cfg.Server.RateLimiter.Enabled {
		limiter = ratelimiter.NewTokenBucket(cfg.Server.RateLimiter.Rate, cfg.Server.RateLimiter.Capacity)
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.RegisterRoutes(router, api.NewAPI(processor, engine, store), limiter)

	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}
	go func() {
		appLogger.Infof("HTTP server listening at %s", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to serve HTTP: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("HTTP server shutdown failed")
	}
	appLogger.Info("Server stopped")
}

// newHistoryStore builds the configured chat history backend.
func newHistoryStore(ctx context.Context, cfg *config.AppConfig) (chat.HistoryStore, error) {
	switch cfg.Chat.HistoryBackend {
	case "redis":
		return chat.NewRedisHistoryStore(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	default:
		return chat.NewFileHistoryStore(cfg.Chat.HistoryDir)
	}
}
