package db

import (
	"context"
	_ "embed"
	"fmt"
	"time"
)

//go:embed schema_sqlite.sql
var sqliteDDL string

//go:embed schema_postgres.sql
var postgresDDL string

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	Up          string
}

// GetMigrations returns all migrations of a dialect in order
func GetMigrations(d Dialect) []Migration {
	ddl := sqliteDDL
	if d == DialectPostgres {
		ddl = postgresDDL
	}
	return []Migration{
		{
			Version:     1,
			Description: "initial schema with sessions, staging and import log tables",
			Up:          ddl,
		},
	}
}

func (s *SQLStore) ensureMigrationsTable(ctx context.Context) error {
	createdType := "DATETIME"
	if s.dialect == DialectPostgres {
		createdType = "TIMESTAMPTZ"
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at %s NOT NULL
		)`, createdType))
	return err
}

// CurrentVersion returns the applied schema version, 0 for an empty database
func (s *SQLStore) CurrentVersion(ctx context.Context) (int, error) {
	if err := s.ensureMigrationsTable(ctx); err != nil {
		return 0, fmt.Errorf("failed to ensure migrations table: %w", err)
	}

	var version int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

func (s *SQLStore) applyMigration(ctx context.Context, m Migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		return fmt.Errorf("failed to apply migration %d: %w", m.Version, err)
	}

	_, err = tx.ExecContext(ctx,
		s.dialect.Rebind("INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)"),
		m.Version, m.Description, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
	}
	return nil
}

// Migrate applies all pending migrations
func (s *SQLStore) Migrate(ctx context.Context) error {
	current, err := s.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range GetMigrations(s.dialect) {
		if m.Version <= current {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}
	}
	return nil
}
