// Package file provides a JSON-file-backed persistence implementation,
// suitable for development and single-process deployments.
package file

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Persistence stores definitions and executions as JSON files under a root
// directory.
type Persistence struct {
	*DefinitionRepository
	*ExecutionRepository

	root string
}

// NewPersistence creates a file persistence rooted at the given directory.
func NewPersistence(root string) *Persistence {
	mu := &sync.Mutex{}

	return &Persistence{
		DefinitionRepository: &DefinitionRepository{root: root, mu: mu},
		ExecutionRepository:  &ExecutionRepository{root: root, mu: mu},
		root:                 root,
	}
}

// HealthCheck verifies the root directory is usable.
func (p *Persistence) HealthCheck(_ context.Context) error {
	err := os.MkdirAll(p.root, 0o755)
	if err != nil {
		return fmt.Errorf("persistence root is not writable: %w", err)
	}

	return nil
}

// Close is a no-op for file storage.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}
