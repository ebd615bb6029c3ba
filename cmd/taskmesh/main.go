package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/taskmesh/taskmesh/internal/application/orchestrator"
	"github.com/taskmesh/taskmesh/internal/application/planner"
	"github.com/taskmesh/taskmesh/internal/application/scheduler"
	"github.com/taskmesh/taskmesh/internal/config"
	"github.com/taskmesh/taskmesh/internal/executors"
	"github.com/taskmesh/taskmesh/internal/ports"
	eventsmem "github.com/taskmesh/taskmesh/pkg/adapters/events/memory"
	eventsredis "github.com/taskmesh/taskmesh/pkg/adapters/events/redis"
	"github.com/taskmesh/taskmesh/pkg/adapters/llm"
	"github.com/taskmesh/taskmesh/pkg/adapters/metrics/prometheus"
	storefile "github.com/taskmesh/taskmesh/pkg/adapters/storage/file"
	storemem "github.com/taskmesh/taskmesh/pkg/adapters/storage/memory"
	storeredis "github.com/taskmesh/taskmesh/pkg/adapters/storage/redis"
	"github.com/taskmesh/taskmesh/pkg/api/grpc"
	"github.com/taskmesh/taskmesh/pkg/api/http"
	"github.com/taskmesh/taskmesh/pkg/api/websocket"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting taskmesh",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("storage_backend", cfg.Storage.Backend))

	ctx := context.Background()

	// The Redis client is only created when a backend needs it.
	var redisClient *goredis.Client
	if cfg.Storage.Backend == "redis" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	store, err := newStore(cfg, redisClient, logger)
	if err != nil {
		logger.Fatal("failed to create workflow store", zap.Error(err))
	}

	var eventBus ports.EventBus
	if redisClient != nil {
		eventBus = eventsredis.NewBus(
			redisClient,
			"taskmesh-workers",
			fmt.Sprintf("taskmesh-%d", os.Getpid()),
			logger,
		)
	} else {
		eventBus = eventsmem.NewBus(logger)
	}

	llmClient, err := llm.NewClient(&llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("failed to create LLM client", zap.Error(err))
	}

	metricsCollector := prometheus.NewCollector()

	agentCfg := executors.AgentConfig{
		Model:       cfg.LLM.DefaultModel,
		MaxTokens:   cfg.LLM.DefaultMaxTokens,
		Temperature: cfg.LLM.DefaultTemperature,
	}
	registry := executors.NewRegistry(cfg.Scheduler.TaskTimeout, logger)
	for _, e := range []ports.Executor{
		executors.NewGeneralExecutor(llmClient, agentCfg, logger),
		executors.NewBrowserExecutor(llmClient, agentCfg, logger),
		executors.NewDataAnalysisExecutor(llmClient, agentCfg, logger),
	} {
		if err := registry.Register(e); err != nil {
			logger.Fatal("failed to register executor", zap.Error(err))
		}
	}

	sched := scheduler.New(
		store,
		registry,
		eventBus,
		metricsCollector,
		logger,
		cfg.Scheduler.WorkflowTimeout,
	)

	taskPlanner := planner.NewLLMPlanner(llmClient, metricsCollector, logger,
		planner.WithModel(cfg.LLM.DefaultModel),
		planner.WithMaxTokens(cfg.LLM.DefaultMaxTokens),
		planner.WithTemperature(cfg.LLM.DefaultTemperature),
	)

	orch := orchestrator.New(
		taskPlanner,
		store,
		sched,
		eventBus,
		metricsCollector,
		logger,
		cfg.Scheduler.ParallelExecution,
	)

	httpServer := http.NewServer(&http.Config{
		Port:         cfg.HTTPPort,
		Orchestrator: orch,
		Logger:       logger,
	})

	wsHandler := websocket.NewHandler(eventBus, logger)
	httpServer.SetupWebSocket(wsHandler)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:   cfg.GRPCPort,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("taskmesh started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("taskmesh shut down complete")
}

func newStore(cfg *config.Config, redisClient *goredis.Client, logger *zap.Logger) (ports.WorkflowStore, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storemem.NewStore(), nil
	case "file":
		return storefile.NewStore(cfg.Storage.WorkflowDir, logger)
	case "redis":
		return storeredis.NewStore(redisClient, cfg.Storage.TTL, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
