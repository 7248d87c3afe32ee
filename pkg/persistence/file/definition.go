package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/campusflow/campusflow/pkg/models"
	"github.com/campusflow/campusflow/pkg/persistence"
)

// DefinitionRepository handles definition-related file operations.
type DefinitionRepository struct {
	root string
	mu   *sync.Mutex
}

func (r *DefinitionRepository) dir() string {
	return filepath.Join(r.root, "definitions")
}

func (r *DefinitionRepository) path(id string) string {
	return filepath.Join(r.dir(), id+".json")
}

// Definitions returns every stored definition.
func (r *DefinitionRepository) Definitions(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.definitionsLocked(ctx)
}

func (r *DefinitionRepository) definitionsLocked(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	root := os.DirFS(r.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list definition files: %w", err)
	}

	defs := make([]*models.WorkflowDefinition, 0, len(jsonFiles))

	for _, f := range jsonFiles {
		def, err := r.load(f[:len(f)-len(".json")])
		if err != nil {
			return nil, err
		}

		defs = append(defs, def)
	}

	return defs, nil
}

// DefinitionByID returns one definition or ErrDefinitionNotFound.
func (r *DefinitionRepository) DefinitionByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.load(id)
}

func (r *DefinitionRepository) load(id string) (*models.WorkflowDefinition, error) {
	data, err := os.ReadFile(r.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewDefinitionError("GetByID", id, persistence.ErrDefinitionNotFound)
		}

		return nil, persistence.NewDefinitionError("GetByID", id, err)
	}

	var def models.WorkflowDefinition

	err = json.Unmarshal(data, &def)
	if err != nil {
		return nil, persistence.NewDefinitionError("GetByID", id, fmt.Errorf("corrupt definition file: %w", err))
	}

	return &def, nil
}

// SaveDefinition writes a definition to disk, creating or replacing it.
func (r *DefinitionRepository) SaveDefinition(_ context.Context, def *models.WorkflowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.MkdirAll(r.dir(), 0o755)
	if err != nil {
		return persistence.NewDefinitionError("Save", def.ID, err)
	}

	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return persistence.NewDefinitionError("Save", def.ID, err)
	}

	err = os.WriteFile(r.path(def.ID), data, 0o644)
	if err != nil {
		return persistence.NewDefinitionError("Save", def.ID, err)
	}

	return nil
}

// DeleteDefinition removes a definition file.
func (r *DefinitionRepository) DeleteDefinition(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.Remove(r.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return persistence.NewDefinitionError("Delete", id, persistence.ErrDefinitionNotFound)
		}

		return persistence.NewDefinitionError("Delete", id, err)
	}

	return nil
}
