package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ragchat/internal/api"
	"ragchat/internal/config"
	"ragchat/internal/rag"
	"ragchat/internal/redis"
	"ragchat/internal/service/ai"
	"ragchat/internal/service/assistant"
	"ragchat/internal/storage"
	"ragchat/internal/worker"
)

func main() {
	cfgPath := os.Getenv(config.EnvConfigPath)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := newLogger(cfg.BasicConfig.Mode)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	if cfg.BasicConfig.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	dbType := os.Getenv(config.EnvDBType)
	if dbType == "" {
		dbType = "sqlite3"
	}
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		logger.Fatal("open database", zap.String("type", dbType), zap.Error(err))
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		logger.Fatal("migrate database", zap.Error(err))
	}

	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		logger.Fatal("create redis client", zap.Error(err))
	}
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providerName, providerCfg := cfg.ActiveProvider()
	var llm *ai.Client
	if client, err := ai.NewClient(ctx, providerName, providerCfg, logger); err != nil {
		// Run without a model rather than refuse to start: persistence and
		// retrieval endpoints still work, /chat reports unavailable.
		logger.Warn("chat model unavailable", zap.String("provider", providerName), zap.Error(err))
	} else {
		llm = client
	}

	embedder := rag.NewOllamaEmbedder(cfg.Retrieval.EmbeddingBaseURL, cfg.Retrieval.EmbeddingModel)
	index := rag.NewIndex(embedder, logger)

	if dir := cfg.Retrieval.WatchDir; dir != "" {
		watcher, err := rag.NewWatcher(index, logger)
		if err != nil {
			logger.Fatal("create document watcher", zap.Error(err))
		}
		defer watcher.Close()
		if err := watcher.Watch(ctx, dir); err != nil {
			logger.Fatal("watch document directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{}, logger)
	defer dispatcher.Stop()

	svc := assistant.NewService(db, assistant.Options{
		LLM:             llm,
		Index:           index,
		Dispatcher:      dispatcher,
		Cache:           rdb,
		LenientSessions: cfg.BasicConfig.LenientSessions,
		Logger:          logger,
	})

	uploadDir := cfg.BasicConfig.UploadDir
	if uploadDir == "" {
		uploadDir = "./data/uploads"
	}
	handler := api.NewHandler(svc, index, uploadDir, logger)

	router := gin.Default()
	handler.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}
	logger.Info("server starting", zap.String("addr", addr), zap.String("provider", providerName))
	if err := router.Run(addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(mode string) (*zap.Logger, error) {
	if mode == "release" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
