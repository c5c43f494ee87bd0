package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const schemaVersion = 2

//go:embed scripts/postgres.sql scripts/sqlite.sql
var bootstrapFS embed.FS

// EnsureBootstrapped creates the schema when the meta table or its version
// row is missing. The scripts are idempotent.
func EnsureBootstrapped(ctx context.Context, db *sql.DB, d dialect, log *logrus.Logger) error {
	ctxBoot, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	existsQuery := `
		SELECT EXISTS (
		  SELECT 1 FROM information_schema.tables
		  WHERE table_name = 'docindex_meta'
		)`
	if !d.isPostgres() {
		existsQuery = `SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'docindex_meta')`
	}

	var exists bool
	if err := db.QueryRowContext(ctxBoot, existsQuery).Scan(&exists); err != nil {
		return fmt.Errorf("meta table check failed: %w", err)
	}
	if !exists {
		log.WithField("driver", d.name).Info("bootstrapping schema")
		return runBootstrap(ctxBoot, db, d)
	}

	var hasVersion bool
	q := d.rebind(`SELECT EXISTS (SELECT 1 FROM docindex_meta WHERE version = ?)`)
	if err := db.QueryRowContext(ctxBoot, q, schemaVersion).Scan(&hasVersion); err != nil {
		return fmt.Errorf("meta version check failed: %w", err)
	}
	if !hasVersion {
		log.WithFields(logrus.Fields{"driver": d.name, "version": schemaVersion}).Info("upgrading schema")
		return runBootstrap(ctxBoot, db, d)
	}

	return nil
}

func runBootstrap(ctx context.Context, db *sql.DB, d dialect) error {
	sqlBytes, err := bootstrapFS.ReadFile(d.script)
	if err != nil {
		return fmt.Errorf("read %s: %w", d.script, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec bootstrap: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}
