package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/ignite/campaign-core/internal/config"
	"github.com/ignite/campaign-core/internal/pkg/logger"
	"github.com/ignite/campaign-core/internal/repository/postgres"
)

func main() {
	dir := flag.String("dir", "", "apply .sql files from this directory instead of the embedded schema")
	list := flag.Bool("list", false, "list migrations without applying them")
	flag.Parse()

	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var fsys fs.FS
	if *dir != "" {
		fsys = os.DirFS(*dir)
	}

	if *list {
		var files []string
		if fsys == nil {
			_, files, err = postgres.Migrations()
		} else {
			files, err = postgres.SQLFiles(fsys)
		}
		if err != nil {
			logger.Error("list migrations", "error", err)
			os.Exit(1)
		}
		for _, f := range files {
			fmt.Println(" ", f)
		}
		fmt.Printf("Total: %d migrations\n", len(files))
		return
	}

	ctx := context.Background()
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	applied, err := postgres.Migrate(ctx, db, fsys)
	if err != nil {
		logger.Error("migration failed", "applied", applied, "error", err)
		os.Exit(1)
	}
	logger.Info("migrations applied", "count", applied)
}
