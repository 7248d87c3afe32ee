package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/campusflow/campusflow/pkg/models"
	"github.com/campusflow/campusflow/pkg/persistence"
)

// ExecutionRepository handles execution-log file operations. A single mutex
// serializes read-modify-write cycles so appended log entries keep their order.
type ExecutionRepository struct {
	root string
	mu   *sync.Mutex
}

func (r *ExecutionRepository) dir() string {
	return filepath.Join(r.root, "executions")
}

func (r *ExecutionRepository) path(id string) string {
	return filepath.Join(r.dir(), id+".json")
}

// SaveExecution persists an execution snapshot. Writes against an execution
// that is already stored as terminal are rejected.
func (r *ExecutionRepository) SaveExecution(_ context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.load(execution.ID)
	if err != nil && !persistence.IsExecutionNotFound(err) {
		return err
	}

	if existing != nil && existing.Status.Terminal() {
		return persistence.NewExecutionError("Save", execution.ID, persistence.ErrExecutionTerminal)
	}

	if existing != nil {
		execution = withOrphanLogs(execution, existing)
	}

	return r.write(execution)
}

// withOrphanLogs keeps log entries that were appended out of band (overlap
// skips land via AppendLog) and are missing from the incoming snapshot.
func withOrphanLogs(execution, existing *models.Execution) *models.Execution {
	known := make(map[string]bool, len(execution.Logs))
	for _, entry := range execution.Logs {
		known[entry.ID] = true
	}

	orphans := make([]models.LogEntry, 0)

	for _, entry := range existing.Logs {
		if !known[entry.ID] {
			orphans = append(orphans, entry)
		}
	}

	if len(orphans) == 0 {
		return execution
	}

	merged := *execution
	merged.Logs = append(append([]models.LogEntry{}, execution.Logs...), orphans...)

	return &merged
}

func (r *ExecutionRepository) write(execution *models.Execution) error {
	err := os.MkdirAll(r.dir(), 0o755)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	data, err := json.MarshalIndent(execution, "", "  ")
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	err = os.WriteFile(r.path(execution.ID), data, 0o644)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

// ExecutionByID returns one execution or ErrExecutionNotFound.
func (r *ExecutionRepository) ExecutionByID(_ context.Context, id string) (*models.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.load(id)
}

func (r *ExecutionRepository) load(id string) (*models.Execution, error) {
	data, err := os.ReadFile(r.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	var execution models.Execution

	err = json.Unmarshal(data, &execution)
	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, fmt.Errorf("corrupt execution file: %w", err))
	}

	return &execution, nil
}

// AppendLog adds one entry to an execution's log, preserving append order.
// Terminal executions no longer accept entries.
func (r *ExecutionRepository) AppendLog(_ context.Context, executionID string, entry models.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, err := r.load(executionID)
	if err != nil {
		return err
	}

	if execution.Status.Terminal() {
		return persistence.NewExecutionError("AppendLog", executionID, persistence.ErrExecutionTerminal)
	}

	execution.Logs = append(execution.Logs, entry)

	return r.write(execution)
}

// ListExecutions returns execution summaries matching the filters, most
// recently started first.
func (r *ExecutionRepository) ListExecutions(_ context.Context, opts persistence.ListExecutionsOptions) ([]models.ExecutionSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	root := os.DirFS(r.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	summaries := make([]models.ExecutionSummary, 0, len(jsonFiles))

	for _, f := range jsonFiles {
		execution, err := r.load(f[:len(f)-len(".json")])
		if err != nil {
			return nil, err
		}

		if !matches(execution, opts) {
			continue
		}

		summaries = append(summaries, execution.Summary())
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartedAt.After(summaries[j].StartedAt)
	})

	return paginate(summaries, opts), nil
}

func matches(execution *models.Execution, opts persistence.ListExecutionsOptions) bool {
	if opts.DefinitionID != "" && execution.DefinitionID != opts.DefinitionID {
		return false
	}

	if opts.Status != nil && execution.Status != *opts.Status {
		return false
	}

	if opts.From != nil && execution.StartedAt.Before(*opts.From) {
		return false
	}

	if opts.To != nil && execution.StartedAt.After(*opts.To) {
		return false
	}

	return true
}

func paginate(summaries []models.ExecutionSummary, opts persistence.ListExecutionsOptions) []models.ExecutionSummary {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	start := opts.Offset
	if start < 0 {
		start = 0
	}

	if start >= len(summaries) {
		return []models.ExecutionSummary{}
	}

	end := start + limit
	if end > len(summaries) {
		end = len(summaries)
	}

	return summaries[start:end]
}
