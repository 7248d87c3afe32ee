package database

import (
	"database/sql"

	"github.com/campusflow/campusflow/pkg/actions"
)

type Factory struct {
	db *sql.DB
}

func NewFactory(db *sql.DB) *Factory {
	return &Factory{db: db}
}

func (f *Factory) Create(config map[string]any) (actions.Adapter, error) {
	return NewDatabaseAction(config, f.db)
}

func (f *Factory) ID() string {
	return "database"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query":           map[string]any{"type": "string"},
			"timeout_seconds": map[string]any{"type": "number"},
		},
		"required": []any{"query"},
	}
}
