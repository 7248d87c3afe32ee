// Package database provides the application-database action adapter.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// DatabaseAction runs one parameterized statement against the application
// database. Queries return rows; other statements return the affected count.
type DatabaseAction struct {
	Query string
	db    *sql.DB
}

func NewDatabaseAction(config map[string]any, db *sql.DB) (*DatabaseAction, error) {
	query, _ := config["query"].(string)
	if query == "" {
		return nil, errors.New("database action requires a query")
	}

	return &DatabaseAction{Query: query, db: db}, nil
}

func (a *DatabaseAction) Execute(ctx context.Context, inputs map[string]any, logger *slog.Logger) (map[string]any, error) {
	if a.db == nil {
		return nil, errors.New("database adapter is not configured with a connection")
	}

	args, _ := inputs["args"].([]any)

	logger.InfoContext(ctx, "Executing database statement", "args", len(args))

	if isQuery(a.Query) {
		return a.queryRows(ctx, args)
	}

	result, err := a.db.ExecContext(ctx, a.Query, args...)
	if err != nil {
		return nil, fmt.Errorf("database statement failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return map[string]any{"rows_affected": affected}, nil
}

func (a *DatabaseAction) queryRows(ctx context.Context, args []any) (map[string]any, error) {
	rows, err := a.db.QueryContext(ctx, a.Query, args...)
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	records := make([]map[string]any, 0)

	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))

		for i := range values {
			pointers[i] = &values[i]
		}

		err := rows.Scan(pointers...)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = values[i]
		}

		records = append(records, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return map[string]any{
		"rows":  records,
		"count": len(records),
	}, nil
}

func isQuery(statement string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(statement)), "SELECT")
}
