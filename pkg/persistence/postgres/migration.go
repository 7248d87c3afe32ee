package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

const currentSchemaVersion = 1

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflow_definitions (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				trigger_spec JSONB NOT NULL,
				nodes       JSONB NOT NULL DEFAULT '[]',
				edges       JSONB NOT NULL DEFAULT '[]',
				settings    JSONB NOT NULL DEFAULT '{}',
				is_active   BOOLEAN NOT NULL DEFAULT FALSE,
				owner       TEXT NOT NULL DEFAULT '',
				created_at  TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at  TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_definitions_active
				ON workflow_definitions (is_active);

			CREATE TABLE IF NOT EXISTS executions (
				id              TEXT PRIMARY KEY,
				definition_id   TEXT NOT NULL,
				status          TEXT NOT NULL,
				started_at      TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at    TIMESTAMP WITH TIME ZONE,
				trigger_payload JSONB,
				node_executions JSONB NOT NULL DEFAULT '[]',
				logs            JSONB NOT NULL DEFAULT '[]',
				error           TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX IF NOT EXISTS idx_executions_definition
				ON executions (definition_id, started_at DESC);

			CREATE INDEX IF NOT EXISTS idx_executions_status
				ON executions (status);
		`,
	}
}

// runMigrations creates the schema tracking table and applies any pending
// migrations inside transactions.
func runMigrations(ctx context.Context, logger *slog.Logger, db *sql.DB) error {
	logger.InfoContext(ctx, "Starting database migrations")

	createMigrationsSQL := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`

	_, err := db.ExecContext(ctx, createMigrationsSQL)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var currentVersion int

	err = db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to query current schema version: %w", err)
	}

	for version := currentVersion + 1; version <= currentSchemaVersion; version++ {
		migration, ok := migrations()[version]
		if !ok {
			continue
		}

		logger.InfoContext(ctx, "Applying migration", "version", version)

		transaction, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", version, err)
		}

		_, err = transaction.ExecContext(ctx, migration)
		if err != nil {
			_ = transaction.Rollback()

			return fmt.Errorf("failed to execute migration %d: %w", version, err)
		}

		_, err = transaction.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version)
		if err != nil {
			_ = transaction.Rollback()

			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}

		err = transaction.Commit()
		if err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
	}

	logger.InfoContext(ctx, "Database migrations completed", "version", currentSchemaVersion)

	return nil
}
