// Package persistence provides the storage abstraction for workflow
// definitions and execution logs.
package persistence

import (
	"context"
	"time"

	"github.com/campusflow/campusflow/pkg/models"
)

// ListExecutionsOptions filters and pages execution queries.
type ListExecutionsOptions struct {
	DefinitionID string
	Status       *models.ExecutionStatus
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// DefinitionRepository stores workflow definitions.
type DefinitionRepository interface {
	Definitions(ctx context.Context) ([]*models.WorkflowDefinition, error)
	DefinitionByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	SaveDefinition(ctx context.Context, def *models.WorkflowDefinition) error
	DeleteDefinition(ctx context.Context, id string) error
}

// ExecutionRepository is the execution log store. Log entries for a single
// execution keep their append order, and once an execution is terminal no
// further writes are accepted for it.
type ExecutionRepository interface {
	SaveExecution(ctx context.Context, execution *models.Execution) error
	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	AppendLog(ctx context.Context, executionID string, entry models.LogEntry) error
	ListExecutions(ctx context.Context, opts ListExecutionsOptions) ([]models.ExecutionSummary, error)
}

// Persistence bundles the repositories behind one lifecycle.
type Persistence interface {
	DefinitionRepository
	ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
