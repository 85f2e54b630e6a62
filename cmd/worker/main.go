package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"schema-relay/internal/config"
	"schema-relay/internal/forwarder"
	"schema-relay/internal/infra/postgresql"
	"schema-relay/internal/infra/postgresql/migrations"
	infraredis "schema-relay/internal/infra/redis"
	"schema-relay/internal/observability"
	"schema-relay/internal/queue"
	"schema-relay/internal/repository"
	"schema-relay/internal/service"
)

const defaultScanLimit = 100

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger("schema-relay-worker", cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.WorkerConcurrency, logger)
	defer consumer.Close()
	publisher := queue.NewRabbitMQPublisher(rabbit)

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.ForwardRatePerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	recordRepo := repository.NewGormRecordRepo(db)
	attemptRepo := repository.NewGormAttemptRepo(db)

	httpForwarder := forwarder.NewHTTPForwarder(time.Duration(cfg.ForwardTimeoutSec) * time.Second)

	worker, err := service.NewForwardWorker(
		recordRepo,
		attemptRepo,
		consumer,
		httpForwarder,
		rateLimiter,
		cfg.WorkerConcurrency,
		logger,
	)
	if err != nil {
		logger.Fatal("forward worker initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	worker.SetMetrics(metrics)

	scanner, err := service.NewRetryScanner(
		recordRepo,
		publisher,
		time.Duration(cfg.RetryScanIntervalMS)*time.Millisecond,
		defaultScanLimit,
		logger,
	)
	if err != nil {
		logger.Fatal("retry scanner initialization failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("schema-relay worker started", zap.Int("concurrency", cfg.WorkerConcurrency))

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Start(groupCtx) })
	g.Go(func() error { return scanner.Start(groupCtx) })

	if err := g.Wait(); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
		return
	}
	logger.Info("worker stopped")
}
