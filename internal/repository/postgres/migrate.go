package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/ignite/campaign-core/internal/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrations returns the embedded schema files in apply order.
func Migrations() (fs.FS, []string, error) {
	sub, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return nil, nil, err
	}
	names, err := SQLFiles(sub)
	return sub, names, err
}

// SQLFiles lists the .sql files at the root of fsys, sorted by name.
func SQLFiles(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Migrate applies every .sql file in fsys, each in its own transaction.
// The files are written to be re-runnable. A nil fsys means the embedded
// schema.
func Migrate(ctx context.Context, db *sql.DB, fsys fs.FS) (int, error) {
	var files []string
	var err error
	if fsys == nil {
		fsys, files, err = Migrations()
	} else {
		files, err = SQLFiles(fsys)
	}
	if err != nil {
		return 0, fmt.Errorf("list migrations: %w", err)
	}

	applied := 0
	for _, f := range files {
		data, err := fs.ReadFile(fsys, f)
		if err != nil {
			return applied, fmt.Errorf("read %s: %w", f, err)
		}
		content := string(data)
		if strings.TrimSpace(content) == "" {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return applied, fmt.Errorf("begin %s: %w", f, err)
		}
		if _, err := tx.ExecContext(ctx, content); err != nil {
			tx.Rollback()
			return applied, fmt.Errorf("apply %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("commit %s: %w", f, err)
		}
		logger.Info("migration applied", "file", f)
		applied++
	}
	return applied, nil
}
