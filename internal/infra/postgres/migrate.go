package postgres

import (
	"context"
	"fmt"

	"github.com/dvloznov/expense-tracker/internal/migrations"
	"github.com/rs/zerolog"
)

// migrationLockID serialises concurrent migrate runs.
const migrationLockID = 73120419

// Migrate applies the pending migrations, each in its own transaction, and
// records them in schema_migrations. It returns how many were applied.
func Migrate(ctx context.Context, db DB, migs []migrations.Migration, appliedBy string, log zerolog.Logger) (int, error) {
	if _, err := db.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return 0, fmt.Errorf("Migrate: acquiring advisory lock: %w", err)
	}
	defer func() {
		if _, err := db.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn().Err(err).Msg("failed to release migration advisory lock")
		}
	}()

	if _, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			checksum   TEXT,
			applied_by TEXT
		)`); err != nil {
		return 0, fmt.Errorf("Migrate: ensuring schema_migrations: %w", err)
	}

	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range migs {
		if checksum, ok := applied[m.Version]; ok {
			if checksum != "" && checksum != m.Checksum {
				log.Warn().Str("file", m.Filename).Msg("applied migration has changed since it ran")
			}
			log.Debug().Str("file", m.Filename).Msg("already applied")
			continue
		}

		log.Info().Str("file", m.Filename).Msg("applying migration")
		if err := applyMigration(ctx, db, m, appliedBy); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func applyMigration(ctx context.Context, db DB, m migrations.Migration, appliedBy string) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("applyMigration: begin %s: %w", m.Filename, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return fmt.Errorf("applyMigration: executing %s: %w", m.Filename, err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version, name, checksum, applied_by) VALUES ($1, $2, $3, $4)",
		m.Version, m.Name, m.Checksum, appliedBy,
	); err != nil {
		return fmt.Errorf("applyMigration: recording %s: %w", m.Filename, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("applyMigration: commit %s: %w", m.Filename, err)
	}
	return nil
}

func appliedMigrations(ctx context.Context, db DB) (map[int]string, error) {
	rows, err := db.Query(ctx, "SELECT version, COALESCE(checksum, '') FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("appliedMigrations: query: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]string)
	for rows.Next() {
		var (
			version  int
			checksum string
		)
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, fmt.Errorf("appliedMigrations: scan: %w", err)
		}
		applied[version] = checksum
	}
	return applied, rows.Err()
}
