// cmd/router/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"go.uber.org/zap"

	"assistant-router/internal/agents"
	"assistant-router/internal/cache"
	"assistant-router/internal/classify"
	"assistant-router/internal/common/config"
	"assistant-router/internal/common/database"
	"assistant-router/internal/common/logger"
	"assistant-router/internal/common/observability"
	"assistant-router/internal/history"
	"assistant-router/internal/llm"
	"assistant-router/internal/notify"
	"assistant-router/internal/orchestrator"
	"assistant-router/internal/querybuilder"
	"assistant-router/internal/server"
	"assistant-router/internal/temporal"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting assistant router...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New("assistant-router")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Zeebe client with retry ---
	var zeebeClient zbc.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebeClient, err = zbc.NewClient(&zbc.ClientConfig{
			GatewayAddress:         cfg.Agents.Workflow.BrokerAddress,
			UsePlaintextConnection: true,
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	defer zeebeClient.Close()
	zapLog.Info("Zeebe client connected successfully")

	// --- Core pipeline components ---
	resolver := temporal.NewResolver(log)
	classifier := classify.NewClassifier(cfg.Routing)
	builder := querybuilder.NewBuilder(resolver, cfg.Routing, log)
	gateway := llm.NewClient(cfg.LLM, log)

	responseCache := cache.New(
		cache.NewRedisStore(redisClient.Client),
		time.Duration(cfg.Cache.TTL)*time.Second,
		cfg.Cache.CacheRouted,
		log,
	)
	historyStore := history.NewRedisStore(redisClient.Client, cfg.History.MaxTurns, log)

	registry := agents.NewRegistry(
		agents.NewSQLAgent(pg.DB, resolver, cfg.Agents.QueryBuilder, log),
		agents.NewSearchAgent(esClient.Client, cfg.Agents.Search, log),
		agents.NewKnowledgeAgent(cfg.Agents.Knowledge, log),
		agents.NewWorkflowAgent(zeebeClient, cfg.Agents.Workflow, log),
	)

	reorienter := orchestrator.NewReorienter(gateway, cfg.Routing.ReorientThreshold, log)

	var opts []orchestrator.Option
	notifier, err := notify.New(ctx, cfg.Notifications, log)
	if err != nil {
		zapLog.Warn("urgent notifications disabled", zap.Error(err))
	} else {
		opts = append(opts, orchestrator.WithNotifier(notifier))
	}

	service := orchestrator.NewService(
		classifier, builder, gateway,
		responseCache, historyStore, registry, reorienter,
		cfg.History.Enabled, log, opts...,
	)

	srv := server.New(cfg.Server, service, obs, log)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		zapLog.Fatal("http server failed", zap.Error(err))
	case sig := <-stop:
		zapLog.Info("Shutting down...", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("graceful shutdown failed", zap.Error(err))
	}

	zapLog.Info("Assistant router stopped")
}
