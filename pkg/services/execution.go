package services

import (
	"context"
	"log/slog"

	"github.com/campusflow/campusflow/pkg/engine"
	"github.com/campusflow/campusflow/pkg/models"
	"github.com/campusflow/campusflow/pkg/persistence"
)

// ExecutionService answers execution queries for the history UI boundary.
type ExecutionService struct {
	logger  *slog.Logger
	persist persistence.ExecutionRepository
	engine  *engine.Engine
}

// NewExecutionService creates the execution query service. eng may be nil
// when cancellation is not needed (read-only consumers).
func NewExecutionService(logger *slog.Logger, persist persistence.ExecutionRepository, eng *engine.Engine) *ExecutionService {
	return &ExecutionService{
		logger:  logger,
		persist: persist,
		engine:  eng,
	}
}

// Get returns one execution with its full node records and log.
func (s *ExecutionService) Get(ctx context.Context, id string) (*models.Execution, error) {
	return s.persist.ExecutionByID(ctx, id)
}

// List returns execution summaries filtered by definition, status and time
// range, newest first.
func (s *ExecutionService) List(ctx context.Context, opts persistence.ListExecutionsOptions) ([]models.ExecutionSummary, error) {
	return s.persist.ListExecutions(ctx, opts)
}

// Cancel requests cooperative cancellation of a running execution.
func (s *ExecutionService) Cancel(ctx context.Context, id, reason string) bool {
	if s.engine == nil {
		return false
	}

	cancelled := s.engine.Cancel(id, reason)
	if cancelled {
		s.logger.InfoContext(ctx, "Execution cancellation requested",
			"execution_id", id, "reason", reason)
	}

	return cancelled
}
