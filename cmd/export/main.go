package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/campaign-core/internal/config"
	"github.com/ignite/campaign-core/internal/export"
	"github.com/ignite/campaign-core/internal/pkg/logger"
	"github.com/ignite/campaign-core/internal/recurrence"
	"github.com/ignite/campaign-core/internal/repository/postgres"
	"github.com/ignite/campaign-core/internal/service/analytics"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config.yaml")
	clients := flag.String("clients", "", "comma-separated client IDs to export")
	tz := flag.String("tz", "UTC", "timezone for daily buckets")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Export.S3Bucket == "" {
		logger.Error("export bucket is not configured (EXPORT_S3_BUCKET)")
		os.Exit(1)
	}
	if *clients == "" {
		logger.Error("-clients is required")
		os.Exit(1)
	}
	loc, err := recurrence.LoadLocation(*tz)
	if err != nil {
		logger.Error("invalid -tz", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	awsCfg, err := export.LoadAWSConfig(ctx, cfg.Export.S3Region, cfg.Export.AWSProfile)
	if err != nil {
		logger.Error("aws config", "error", err)
		os.Exit(1)
	}
	var snapshots *export.SnapshotStore
	if cfg.Export.SnapshotTable != "" {
		snapshots = export.NewSnapshotStore(dynamodb.NewFromConfig(awsCfg), cfg.Export.SnapshotTable)
	}
	exporter := export.NewExporter(
		export.NewBuilder(analytics.NewService(postgres.NewEventRepo(db))),
		export.NewS3Sink(s3.NewFromConfig(awsCfg), cfg.Export.S3Bucket, cfg.Export.S3Prefix),
		snapshots,
	)

	failed := 0
	enc := json.NewEncoder(os.Stdout)
	for _, id := range strings.Split(*clients, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		res, err := exporter.Run(ctx, id, loc)
		if err != nil {
			logger.Error("export failed", "client_id", id, "error", err)
			failed++
			continue
		}
		enc.Encode(res)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
