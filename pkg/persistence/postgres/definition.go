package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/campusflow/campusflow/pkg/models"
	"github.com/campusflow/campusflow/pkg/persistence"
)

// DefinitionRepository handles definition-related database operations. Graph
// payloads (trigger, nodes, edges, settings) are stored as JSONB columns.
type DefinitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const definitionColumns = `
	id
  , name
  , description
  , trigger_spec
  , nodes
  , edges
  , settings
  , is_active
  , owner
  , created_at
  , updated_at
`

// Definitions returns every stored definition.
func (r *DefinitionRepository) Definitions(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query definitions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	defs := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}

		defs = append(defs, def)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating definitions: %w", err)
	}

	return defs, nil
}

// DefinitionByID returns one definition or ErrDefinitionNotFound.
func (r *DefinitionRepository) DefinitionByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions WHERE id = $1`

	def, err := scanDefinition(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewDefinitionError("GetByID", id, persistence.ErrDefinitionNotFound)
		}

		return nil, persistence.NewDefinitionError("GetByID", id, err)
	}

	return def, nil
}

// SaveDefinition upserts a definition.
func (r *DefinitionRepository) SaveDefinition(ctx context.Context, def *models.WorkflowDefinition) error {
	trigger, nodes, edges, settings, err := marshalDefinition(def)
	if err != nil {
		return persistence.NewDefinitionError("Save", def.ID, err)
	}

	query := `
		INSERT INTO workflow_definitions (` + definitionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name        = EXCLUDED.name
		  , description = EXCLUDED.description
		  , trigger_spec = EXCLUDED.trigger_spec
		  , nodes       = EXCLUDED.nodes
		  , edges       = EXCLUDED.edges
		  , settings    = EXCLUDED.settings
		  , is_active   = EXCLUDED.is_active
		  , owner       = EXCLUDED.owner
		  , updated_at  = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		def.ID, def.Name, def.Description, trigger, nodes, edges, settings,
		def.IsActive, def.Owner, def.CreatedAt, def.UpdatedAt,
	)
	if err != nil {
		return persistence.NewDefinitionError("Save", def.ID, err)
	}

	return nil
}

// DeleteDefinition removes a definition row.
func (r *DefinitionRepository) DeleteDefinition(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflow_definitions WHERE id = $1`, id)
	if err != nil {
		return persistence.NewDefinitionError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewDefinitionError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewDefinitionError("Delete", id, persistence.ErrDefinitionNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*models.WorkflowDefinition, error) {
	var (
		def      models.WorkflowDefinition
		trigger  []byte
		nodes    []byte
		edges    []byte
		settings []byte
	)

	err := row.Scan(
		&def.ID, &def.Name, &def.Description, &trigger, &nodes, &edges,
		&settings, &def.IsActive, &def.Owner, &def.CreatedAt, &def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(trigger, &def.Trigger)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger: %w", err)
	}

	err = json.Unmarshal(nodes, &def.Nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	err = json.Unmarshal(edges, &def.Edges)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}

	err = json.Unmarshal(settings, &def.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	return &def, nil
}

func marshalDefinition(def *models.WorkflowDefinition) (trigger, nodes, edges, settings []byte, err error) {
	trigger, err = json.Marshal(def.Trigger)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal trigger: %w", err)
	}

	nodes, err = json.Marshal(def.Nodes)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal nodes: %w", err)
	}

	edges, err = json.Marshal(def.Edges)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal edges: %w", err)
	}

	settings, err = json.Marshal(def.Settings)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal settings: %w", err)
	}

	return trigger, nodes, edges, settings, nil
}
