package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-tracker/internal/migrations"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
)

// Migrate applies pending migrations to the store's dataset and records each
// one in schema_migrations. BigQuery has no transactions for DDL, so a
// migration that fails halfway must be fixed forward.
func (s *Store) Migrate(ctx context.Context, migs []migrations.Migration, appliedBy string, log zerolog.Logger) (int, error) {
	if err := s.ensureSchemaMigrationsTable(ctx); err != nil {
		return 0, fmt.Errorf("Migrate: ensuring schema_migrations: %w", err)
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return 0, fmt.Errorf("Migrate: %w", err)
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
		for i, stmt := range migrations.Statements(m.SQL) {
			if _, err := runDML(ctx, s.client, stmt, nil); err != nil {
				return count, fmt.Errorf("Migrate: %s statement %d: %w", m.Filename, i+1, err)
			}
		}
		if err := s.recordMigration(ctx, m, appliedBy); err != nil {
			return count, fmt.Errorf("Migrate: recording %s: %w", m.Filename, err)
		}
		count++
	}
	return count, nil
}

func (s *Store) ensureSchemaMigrationsTable(ctx context.Context) error {
	_, err := runDML(ctx, s.client, `
		CREATE TABLE IF NOT EXISTS `+s.table("schema_migrations")+` (
			version    INT64 NOT NULL,
			name       STRING NOT NULL,
			applied_at TIMESTAMP NOT NULL,
			checksum   STRING,
			applied_by STRING
		)
	`, nil)
	return err
}

func (s *Store) appliedMigrations(ctx context.Context) (map[int]string, error) {
	q := s.client.Query(`
		SELECT version, checksum
		FROM ` + s.table("schema_migrations") + `
		ORDER BY version ASC
	`)
	it, err := q.Read(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "Not found") {
			return map[int]string{}, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	applied := make(map[int]string)
	for {
		var row struct {
			Version  int64               `bigquery:"version"`
			Checksum bigquery.NullString `bigquery:"checksum"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}
		applied[int(row.Version)] = row.Checksum.StringVal
	}
	return applied, nil
}

func (s *Store) recordMigration(ctx context.Context, m migrations.Migration, appliedBy string) error {
	_, err := runDML(ctx, s.client, `
		INSERT INTO `+s.table("schema_migrations")+`
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, []bigquery.QueryParameter{
		{Name: "version", Value: m.Version},
		{Name: "name", Value: m.Name},
		{Name: "checksum", Value: m.Checksum},
		{Name: "applied_by", Value: appliedBy},
	})
	return err
}

// TemplateVars returns the placeholder values for the BigQuery migrations.
func (s *Store) TemplateVars() map[string]string {
	return map[string]string{"PROJECT_ID": s.projectID, "DATASET_ID": s.datasetID}
}
