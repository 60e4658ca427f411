package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-core/internal/api"
	"github.com/ignite/campaign-core/internal/config"
	"github.com/ignite/campaign-core/internal/export"
	"github.com/ignite/campaign-core/internal/pkg/logger"
	"github.com/ignite/campaign-core/internal/repository/postgres"
	"github.com/ignite/campaign-core/internal/service/analytics"
	"github.com/ignite/campaign-core/internal/service/schedule"
	"github.com/ignite/campaign-core/internal/tracking"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config.yaml")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	configureLogger(cfg.Logging)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	events := postgres.NewEventRepo(db)
	var sink analytics.Sink = events
	if cfg.Ingest.Queued() {
		awsCfg, err := export.LoadAWSConfig(ctx, cfg.Ingest.Region, cfg.Export.AWSProfile)
		if err != nil {
			logger.Error("aws config", "error", err)
			os.Exit(1)
		}
		sink = tracking.NewPublisher(sqs.NewFromConfig(awsCfg), cfg.Ingest.QueueURL)
		logger.Info("event ingestion queued", "queue", cfg.Ingest.QueueURL)
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("invalid redis url", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	var bucket api.BucketHeader
	if cfg.Export.S3Bucket != "" {
		awsCfg, err := export.LoadAWSConfig(ctx, cfg.Export.S3Region, cfg.Export.AWSProfile)
		if err != nil {
			logger.Warn("export bucket health check disabled", "error", err)
		} else {
			bucket = s3.NewFromConfig(awsCfg)
		}
	}

	handlers := api.NewHandlers(
		schedule.NewService(postgres.NewScheduleRepo(db)),
		analytics.NewService(events),
		tracking.NewHandler(sink, tracking.NewSigner(cfg.Tracking.SigningKey)),
		api.NewHealthChecker(db, redisClient, bucket, cfg.Export.S3Bucket),
	)
	server := api.NewServer(cfg.Server, handlers)

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	logger.Info("server stopped")
}

func configureLogger(cfg config.LoggingConfig) {
	level, ok := logger.ParseLevel(cfg.Level)
	if !ok {
		logger.Warn("unknown log level, using info", "level", cfg.Level)
	}
	logger.SetLevel(level)
	logger.SetRedactPII(cfg.Redact())
}
