// Package migrations embeds the PostgreSQL schema and applies it incrementally.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	txcontext "bloodlink/pkg/platform/tx"
)

//go:embed *.up.sql
var files embed.FS

// Names returns the embedded migration names in apply order.
func Names() ([]string, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, strings.TrimSuffix(e.Name(), ".up.sql"))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Apply runs every migration not yet recorded in schema_migrations. Each
// migration and its bookkeeping row commit together.
func Apply(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	names, err := Names()
	if err != nil {
		return err
	}
	applied := 0
	for _, name := range names {
		var exists bool
		if err := db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE name = $1)`, name).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if exists {
			continue
		}
		body, err := files.ReadFile(name + ".up.sql")
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		err = txcontext.Run(ctx, db, func(ctx context.Context) error {
			exec := txcontext.Executor(ctx, db)
			if _, err := exec.ExecContext(ctx, string(body)); err != nil {
				return err
			}
			_, err := exec.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		applied++
		if logger != nil {
			logger.InfoContext(ctx, "migration applied", "migration", name)
		}
	}
	if logger != nil && applied == 0 {
		logger.InfoContext(ctx, "all migrations already applied")
	}
	return nil
}
