// Package cmd holds the shared bootstrap helpers for the binaries.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/campusflow/campusflow/pkg/persistence"
	"github.com/campusflow/campusflow/pkg/persistence/file"
	"github.com/campusflow/campusflow/pkg/persistence/postgres"
)

// NewPersistence selects the storage backend from the database URL scheme:
// postgres:// (or postgresql://) for PostgreSQL, anything else is treated as
// a directory path for the JSON file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgres.NewPersistence(ctx, logger, databaseURL)
	case strings.HasPrefix(databaseURL, "file://"):
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
	default:
		return file.NewPersistence(databaseURL), nil
	}
}
