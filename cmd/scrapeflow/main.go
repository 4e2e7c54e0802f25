package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scrapeflow/internal/api"
	"scrapeflow/internal/config"
	"scrapeflow/internal/extract"
	"scrapeflow/internal/monitoring"
	"scrapeflow/internal/proxy"
	"scrapeflow/internal/publish"
	"scrapeflow/internal/rules"
	"scrapeflow/internal/scraper"
	"scrapeflow/internal/storage"
	"scrapeflow/internal/task"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

func main() {
	// Initialize structured logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("could not load config", zap.Error(err))
	}

	ctx := context.Background()
	backends := make(map[string]api.Pinger)

	// Task store
	var taskStore task.Store
	if cfg.TaskStore == "memory" {
		taskStore = task.NewMemoryStore()
		logger.Info("using in-memory task store")
	} else {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		redisStore := task.NewRedisStore(rdb, cfg.TaskTTL())
		if err := redisStore.Ping(ctx); err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		taskStore = redisStore
		backends["redis"] = redisStore
	}

	// Rule store and generator
	ruleStore, err := rules.NewFileStore(afero.NewOsFs(), cfg.RulesDir, logger)
	if err != nil {
		logger.Fatal("failed to open rules dir", zap.Error(err))
	}
	var generator rules.Generator
	if cfg.LLMAPIKey != "" {
		generator = rules.NewLLMGenerator(rules.LLMConfig{
			BaseURL: cfg.LLMBaseURL,
			APIKey:  cfg.LLMAPIKey,
			Model:   cfg.LLMModel,
		}, logger)
		logger.Info("rule generation backend: llm", zap.String("model", cfg.LLMModel))
	} else {
		generator = rules.NewHeuristicGenerator(logger)
		logger.Info("rule generation backend: heuristic")
	}

	// Fetching and extraction
	proxyManager := proxy.NewManager(nil, nil, time.Now().UnixNano())
	fetcher := extract.NewSwitchingFetcher(
		extract.NewHTTPFetcher(proxyManager),
		extract.NewHeadlessFetcher(),
	)
	extractor := extract.NewRuleExtractor(fetcher, logger)

	// Metrics
	metrics := monitoring.NewMetrics()

	// Result sinks
	var sinks []scraper.ResultSink
	if cfg.PostgresURL != "" {
		archive, err := storage.NewPostgresArchive(ctx, cfg.PostgresURL)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer archive.Close()
		if err := archive.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to apply archive schema", zap.Error(err))
		}
		sinks = append(sinks, archive)
		backends["postgres"] = archive
	}
	if cfg.AMQPURL != "" {
		publisher, err := publish.NewRabbitMQ(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Fatal("failed to connect to rabbitmq", zap.Error(err))
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}

	// Orchestration core
	controller := scraper.NewController(ruleStore, generator, fetcher, extractor, metrics, logger, scraper.Policy{
		MaxRetries:     cfg.MaxRetries,
		AttemptTimeout: cfg.AttemptTimeout(),
		RequiredFields: cfg.RequiredFields(),
		AcceptPartial:  cfg.AcceptPartial,
	})
	scheduler := scraper.NewScheduler(taskStore, controller, sinks, metrics, logger, cfg.Workers, cfg.QueueSize)
	scheduler.Start()

	// API server
	server := api.NewServer(cfg, scheduler, taskStore, backends, metrics, logger)

	// Graceful shutdown
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("could not start server", zap.Error(err))
		}
	}()

	logger.Info("server started", zap.String("port", cfg.ServerPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	scheduler.Stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}
