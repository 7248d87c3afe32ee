package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/campusflow/campusflow/pkg/models"
	"github.com/campusflow/campusflow/pkg/persistence"
)

// ExecutionRepository handles execution-log database operations. Node records
// and log entries are JSONB arrays; the terminal-immutability rule is enforced
// with a status guard on the update path.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const executionColumns = `
	id
  , definition_id
  , status
  , started_at
  , completed_at
  , trigger_payload
  , node_executions
  , logs
  , error
`

var terminalStatuses = []string{
	string(models.ExecutionStatusCompleted),
	string(models.ExecutionStatusFailed),
	string(models.ExecutionStatusCancelled),
}

// SaveExecution upserts an execution snapshot. The update is guarded so a row
// that already reached a terminal status is never overwritten.
func (r *ExecutionRepository) SaveExecution(ctx context.Context, execution *models.Execution) error {
	payload, nodeExecutions, logs, err := marshalExecution(execution)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	query := `
		INSERT INTO executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status          = EXCLUDED.status
		  , completed_at    = EXCLUDED.completed_at
		  , node_executions = EXCLUDED.node_executions
		  -- Keep entries appended out of band (overlap skips) that the
		  -- incoming snapshot does not carry.
		  , logs            = EXCLUDED.logs || (
				SELECT COALESCE(jsonb_agg(entry), '[]'::jsonb)
				FROM jsonb_array_elements(executions.logs) AS entry
				WHERE NOT EXCLUDED.logs @> jsonb_build_array(entry)
			)
		  , error           = EXCLUDED.error
		WHERE executions.status NOT IN ('` + strings.Join(terminalStatuses, "', '") + `')
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.ID, execution.DefinitionID, execution.Status,
		execution.StartedAt, execution.CompletedAt, payload, nodeExecutions,
		logs, execution.Error,
	)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	if affected == 0 {
		return persistence.NewExecutionError("Save", execution.ID, persistence.ErrExecutionTerminal)
	}

	return nil
}

// ExecutionByID returns one execution or ErrExecutionNotFound.
func (r *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

// AppendLog appends one entry to the execution's JSONB log array, preserving
// append order. Terminal executions reject the write.
func (r *ExecutionRepository) AppendLog(ctx context.Context, executionID string, entry models.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return persistence.NewExecutionError("AppendLog", executionID, err)
	}

	query := `
		UPDATE executions
		SET logs = logs || $2::jsonb
		WHERE id = $1
		  AND status NOT IN ('` + strings.Join(terminalStatuses, "', '") + `')
	`

	result, err := r.db.ExecContext(ctx, query, executionID, data)
	if err != nil {
		return persistence.NewExecutionError("AppendLog", executionID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("AppendLog", executionID, err)
	}

	if affected == 0 {
		var exists bool

		err = r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM executions WHERE id = $1)`, executionID).Scan(&exists)
		if err != nil {
			return persistence.NewExecutionError("AppendLog", executionID, err)
		}

		if !exists {
			return persistence.NewExecutionError("AppendLog", executionID, persistence.ErrExecutionNotFound)
		}

		return persistence.NewExecutionError("AppendLog", executionID, persistence.ErrExecutionTerminal)
	}

	return nil
}

// ListExecutions returns execution summaries matching the filters, most
// recently started first.
func (r *ExecutionRepository) ListExecutions(ctx context.Context, opts persistence.ListExecutionsOptions) ([]models.ExecutionSummary, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	where := []string{"TRUE"}
	args := []any{}

	addArg := func(clause string, value any) {
		args = append(args, value)
		where = append(where, clause+" $"+strconv.Itoa(len(args)))
	}

	if opts.DefinitionID != "" {
		addArg("definition_id =", opts.DefinitionID)
	}

	if opts.Status != nil {
		addArg("status =", string(*opts.Status))
	}

	if opts.From != nil {
		addArg("started_at >=", *opts.From)
	}

	if opts.To != nil {
		addArg("started_at <=", *opts.To)
	}

	query := `
		SELECT
			id
		  , definition_id
		  , status
		  , started_at
		  , completed_at
		  , jsonb_array_length(node_executions)
		  , error
		FROM executions
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY started_at DESC
		LIMIT ` + strconv.Itoa(limit) + ` OFFSET ` + strconv.Itoa(offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	summaries := make([]models.ExecutionSummary, 0)

	for rows.Next() {
		var s models.ExecutionSummary

		err := rows.Scan(&s.ID, &s.DefinitionID, &s.Status, &s.StartedAt, &s.CompletedAt, &s.NodeCount, &s.Error)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution summary: %w", err)
		}

		summaries = append(summaries, s)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return summaries, nil
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution      models.Execution
		payload        []byte
		nodeExecutions []byte
		logs           []byte
	)

	err := row.Scan(
		&execution.ID, &execution.DefinitionID, &execution.Status,
		&execution.StartedAt, &execution.CompletedAt, &payload,
		&nodeExecutions, &logs, &execution.Error,
	)
	if err != nil {
		return nil, err
	}

	if len(payload) > 0 {
		err = json.Unmarshal(payload, &execution.TriggerPayload)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger payload: %w", err)
		}
	}

	err = json.Unmarshal(nodeExecutions, &execution.NodeExecutions)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal node executions: %w", err)
	}

	err = json.Unmarshal(logs, &execution.Logs)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal logs: %w", err)
	}

	return &execution, nil
}

func marshalExecution(execution *models.Execution) (payload, nodeExecutions, logs []byte, err error) {
	if execution.TriggerPayload != nil {
		payload, err = json.Marshal(execution.TriggerPayload)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal trigger payload: %w", err)
		}
	}

	nodeExecutions, err = json.Marshal(execution.NodeExecutions)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal node executions: %w", err)
	}

	if execution.NodeExecutions == nil {
		nodeExecutions = []byte("[]")
	}

	logs, err = json.Marshal(execution.Logs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal logs: %w", err)
	}

	if execution.Logs == nil {
		logs = []byte("[]")
	}

	return payload, nodeExecutions, logs, nil
}
