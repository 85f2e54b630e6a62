package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"schema-relay/internal/config"
	"schema-relay/internal/handler"
	"schema-relay/internal/infra/postgresql"
	"schema-relay/internal/infra/postgresql/migrations"
	infraredis "schema-relay/internal/infra/redis"
	"schema-relay/internal/observability"
	"schema-relay/internal/queue"
	"schema-relay/internal/registry"
	"schema-relay/internal/repository"
	"schema-relay/internal/service"
	"schema-relay/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger("schema-relay-api", cfg.LogLevel)
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
	publisher := queue.NewRabbitMQPublisher(rabbit)
	defer publisher.Close()

	registryClient, err := registry.NewApicurioClient(cfg.RegistryURL)
	if err != nil {
		logger.Fatal("schema registry initialization failed", zap.Error(err))
	}

	recordRepo := repository.NewGormRecordRepo(db)
	attemptRepo := repository.NewGormAttemptRepo(db)

	ingestService, err := service.NewIngestService(
		recordRepo,
		attemptRepo,
		registryClient,
		publisher,
		cfg.MaxForwardAttempts,
		cfg.QueryMaxLimit,
		logger,
	)
	if err != nil {
		logger.Fatal("ingest service initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	ingestService.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterRecordRoutes(app, ingestService); err != nil {
		logger.Fatal("record route registration failed", zap.Error(err))
	}
	if err := handler.RegisterSchemaRoutes(app, ingestService); err != nil {
		logger.Fatal("schema route registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down api")
		if err := app.Shutdown(); err != nil {
			logger.Error("api shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("schema-relay api started", zap.Int("port", cfg.APIPort))
	if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
		logger.Error("api server stopped", zap.Error(err))
		os.Exit(1)
	}
}
