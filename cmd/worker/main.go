package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-core/internal/config"
	"github.com/ignite/campaign-core/internal/export"
	"github.com/ignite/campaign-core/internal/pkg/distlock"
	"github.com/ignite/campaign-core/internal/pkg/httpretry"
	"github.com/ignite/campaign-core/internal/pkg/logger"
	"github.com/ignite/campaign-core/internal/repository/postgres"
	"github.com/ignite/campaign-core/internal/tracking"
	"github.com/ignite/campaign-core/internal/worker"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config.yaml")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	level, _ := logger.ParseLevel(cfg.Logging.Level)
	logger.SetLevel(level)
	logger.SetRedactPII(cfg.Logging.Redact())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("invalid redis url", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		logger.Info("slot locks use redis")
	} else {
		logger.Info("slot locks use postgres advisory locks")
	}

	var sweeper *worker.ScheduleSweeper
	if cfg.Scheduler.Enabled {
		dispatch := worker.Chain{worker.NewRecordingDispatcher(postgres.NewFireLog(db))}
		if cfg.Dispatch.WebhookURL != "" {
			client := httpretry.NewRetryClient(&http.Client{Timeout: cfg.Dispatch.Timeout()}, cfg.Dispatch.MaxRetries)
			dispatch = append(dispatch, worker.NewWebhookDispatcher(client, cfg.Dispatch.WebhookURL))
			logger.Info("fires forwarded", "url", cfg.Dispatch.WebhookURL)
		}

		sweeper = worker.NewScheduleSweeper(
			postgres.NewScheduleRepo(db),
			dispatch,
			distlock.NewFactory(redisClient, db, cfg.Scheduler.LockTTL()),
		)
		sweeper.SetInterval(cfg.Scheduler.SweepInterval())
		sweeper.SetMisfireWindow(cfg.Scheduler.MisfireWindow())
		if err := sweeper.Start(); err != nil {
			logger.Error("sweeper failed to start", "error", err)
			os.Exit(1)
		}
	}

	var consumer *tracking.Consumer
	if cfg.Ingest.Queued() {
		awsCfg, err := export.LoadAWSConfig(ctx, cfg.Ingest.Region, cfg.Export.AWSProfile)
		if err != nil {
			logger.Error("aws config", "error", err)
			os.Exit(1)
		}
		consumer = tracking.NewConsumer(sqs.NewFromConfig(awsCfg), cfg.Ingest.QueueURL, postgres.NewEventRepo(db))
		consumer.Start(ctx)
	}

	if sweeper == nil && consumer == nil {
		logger.Warn("nothing to run: scheduler disabled and no ingest queue configured")
	}

	<-ctx.Done()
	logger.Info("shutting down worker")
	if consumer != nil {
		consumer.Stop()
	}
	if sweeper != nil {
		sweeper.Stop()
		logger.Info("sweeper stats", "stats", sweeper.Stats())
	}
	logger.Info("worker stopped")
}
