// Package services implements the application operations behind the API and
// CLI: definition lifecycle with its activation gate, and execution queries.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/campusflow/campusflow/pkg/models"
	"github.com/campusflow/campusflow/pkg/persistence"
	"github.com/campusflow/campusflow/pkg/validation"
)

// TriggerIndex is the dispatcher surface the workflow service needs: index
// refresh after definition changes and cascade cancellation on delete or
// deactivation.
type TriggerIndex interface {
	Refresh(ctx context.Context) error
	CancelForDefinition(ctx context.Context, definitionID, reason string) int
}

// WorkflowService owns the definition lifecycle. An active definition never
// reaches the store without a clean validation pass.
type WorkflowService struct {
	logger    *slog.Logger
	persist   persistence.Persistence
	validator *validation.Validator
	triggers  TriggerIndex
}

// NewWorkflowService creates the definition service. triggers may be nil for
// local (CLI) use, where no dispatcher is running.
func NewWorkflowService(logger *slog.Logger, persist persistence.Persistence, validator *validation.Validator, triggers TriggerIndex) *WorkflowService {
	return &WorkflowService{
		logger:    logger,
		persist:   persist,
		validator: validator,
		triggers:  triggers,
	}
}

// Validate runs the graph validator without persisting anything.
func (s *WorkflowService) Validate(def *models.WorkflowDefinition) []validation.ValidationError {
	return s.validator.Validate(def)
}

// Create stores a new definition. Activation requires a clean validation
// pass; an inactive definition may be saved with problems outstanding.
func (s *WorkflowService) Create(ctx context.Context, def *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	if def.ID == "" {
		def.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	def.CreatedAt = now
	def.UpdatedAt = now
	def.Settings = def.Settings.Normalized()

	if def.IsActive {
		if problems := s.validator.Validate(def); len(problems) > 0 {
			return nil, &ValidationFailedError{DefinitionID: def.ID, Problems: problems}
		}
	}

	if err := s.persist.SaveDefinition(ctx, def); err != nil {
		return nil, &ServiceError{Op: "workflow.create", Message: "failed to save definition", Err: err}
	}

	s.logger.InfoContext(ctx, "Definition created",
		"definition_id", def.ID, "name", def.Name, "active", def.IsActive)

	s.refreshTriggers(ctx)

	return def, nil
}

// Update replaces a stored definition, re-validating the whole graph when the
// result is active. Deactivating cancels the definition's in-flight runs.
func (s *WorkflowService) Update(ctx context.Context, def *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	existing, err := s.persist.DefinitionByID(ctx, def.ID)
	if err != nil {
		return nil, err
	}

	def.CreatedAt = existing.CreatedAt
	def.UpdatedAt = time.Now().UTC()
	def.Settings = def.Settings.Normalized()

	if def.IsActive {
		if problems := s.validator.Validate(def); len(problems) > 0 {
			return nil, &ValidationFailedError{DefinitionID: def.ID, Problems: problems}
		}
	}

	if err := s.persist.SaveDefinition(ctx, def); err != nil {
		return nil, &ServiceError{Op: "workflow.update", Message: "failed to save definition", Err: err}
	}

	if existing.IsActive && !def.IsActive && s.triggers != nil {
		s.triggers.CancelForDefinition(ctx, def.ID, "definition deactivated")
	}

	s.logger.InfoContext(ctx, "Definition updated",
		"definition_id", def.ID, "name", def.Name, "active", def.IsActive)

	s.refreshTriggers(ctx)

	return def, nil
}

// Delete removes a definition and cancels its in-flight executions.
func (s *WorkflowService) Delete(ctx context.Context, id string) error {
	if _, err := s.persist.DefinitionByID(ctx, id); err != nil {
		return err
	}

	if s.triggers != nil {
		s.triggers.CancelForDefinition(ctx, id, "definition deleted")
	}

	if err := s.persist.DeleteDefinition(ctx, id); err != nil {
		return &ServiceError{Op: "workflow.delete", Message: "failed to delete definition", Err: err}
	}

	s.logger.InfoContext(ctx, "Definition deleted", "definition_id", id)

	s.refreshTriggers(ctx)

	return nil
}

// Get returns one stored definition.
func (s *WorkflowService) Get(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	return s.persist.DefinitionByID(ctx, id)
}

// List returns every stored definition.
func (s *WorkflowService) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	return s.persist.Definitions(ctx)
}

func (s *WorkflowService) refreshTriggers(ctx context.Context) {
	if s.triggers == nil {
		return
	}

	if err := s.triggers.Refresh(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Failed to refresh trigger index", "error", err)
	}
}
