package services

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusflow/campusflow/pkg/models"
	"github.com/campusflow/campusflow/pkg/persistence"
	"github.com/campusflow/campusflow/pkg/persistence/file"
	"github.com/campusflow/campusflow/pkg/validation"
)

type fakeTriggerIndex struct {
	refreshes  int
	cancels    []string
	cancelArgs []string
}

func (f *fakeTriggerIndex) Refresh(context.Context) error {
	f.refreshes++

	return nil
}

func (f *fakeTriggerIndex) CancelForDefinition(_ context.Context, definitionID, reason string) int {
	f.cancels = append(f.cancels, definitionID)
	f.cancelArgs = append(f.cancelArgs, reason)

	return 1
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func validDefinition(id string, active bool) *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:       id,
		Name:     "Welcome flow",
		Trigger:  models.Trigger{Type: models.TriggerTypeEvent, EventName: "student.enrolled"},
		IsActive: active,
		Nodes: []*models.Node{{
			ID:       "trigger",
			Name:     "Trigger",
			Category: models.CategoryTrigger,
			Type:     "event",
			Outputs:  []models.PortSpec{{Key: "payload", ValueType: models.ValueTypeJSON}},
		}},
	}
}

func newService(t *testing.T) (*WorkflowService, *file.Persistence, *fakeTriggerIndex) {
	t.Helper()

	persist := file.NewPersistence(t.TempDir())
	triggers := &fakeTriggerIndex{}
	service := NewWorkflowService(testLogger(), persist, validation.New(nil), triggers)

	return service, persist, triggers
}

func TestCreate_AssignsIDAndRefreshes(t *testing.T) {
	ctx := context.Background()
	service, persist, triggers := newService(t)

	created, err := service.Create(ctx, validDefinition("", true))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, models.DefaultTimeoutSeconds, created.Settings.TimeoutSeconds)
	assert.Equal(t, 1, triggers.refreshes)

	stored, err := persist.DefinitionByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
}

func TestCreate_ActiveDefinitionMustValidate(t *testing.T) {
	ctx := context.Background()
	service, _, triggers := newService(t)

	def := validDefinition("wf-1", true)
	def.Nodes = nil // no trigger node

	_, err := service.Create(ctx, def)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	var vErr *ValidationFailedError

	require.True(t, errors.As(err, &vErr))
	assert.NotEmpty(t, vErr.Problems)
	assert.Equal(t, 0, triggers.refreshes, "nothing saved, nothing refreshed")
}

func TestCreate_InactiveDefinitionMaySkipValidation(t *testing.T) {
	ctx := context.Background()
	service, persist, _ := newService(t)

	def := validDefinition("wf-draft", false)
	def.Nodes = nil // a draft may be structurally incomplete

	created, err := service.Create(ctx, def)
	require.NoError(t, err)

	_, err = persist.DefinitionByID(ctx, created.ID)
	assert.NoError(t, err)
}

func TestUpdate_DeactivationCancelsRuns(t *testing.T) {
	ctx := context.Background()
	service, _, triggers := newService(t)

	created, err := service.Create(ctx, validDefinition("wf-1", true))
	require.NoError(t, err)

	created.IsActive = false
	_, err = service.Update(ctx, created)
	require.NoError(t, err)

	require.Len(t, triggers.cancels, 1)
	assert.Equal(t, "wf-1", triggers.cancels[0])
	assert.Equal(t, "definition deactivated", triggers.cancelArgs[0])
}

func TestUpdate_PreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newService(t)

	created, err := service.Create(ctx, validDefinition("wf-1", true))
	require.NoError(t, err)

	originalCreatedAt := created.CreatedAt

	updated := validDefinition("wf-1", true)
	updated.Name = "Renamed flow"

	result, err := service.Update(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, originalCreatedAt, result.CreatedAt)
	assert.Equal(t, "Renamed flow", result.Name)
}

func TestUpdate_MissingDefinition(t *testing.T) {
	service, _, _ := newService(t)

	_, err := service.Update(context.Background(), validDefinition("ghost", false))
	assert.True(t, persistence.IsDefinitionNotFound(err))
}

func TestDelete_CancelsAndRemoves(t *testing.T) {
	ctx := context.Background()
	service, persist, triggers := newService(t)

	created, err := service.Create(ctx, validDefinition("wf-1", true))
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, created.ID))

	require.Len(t, triggers.cancels, 1)
	assert.Equal(t, "definition deleted", triggers.cancelArgs[0])

	_, err = persist.DefinitionByID(ctx, created.ID)
	assert.True(t, persistence.IsDefinitionNotFound(err))
}

func TestDelete_MissingDefinition(t *testing.T) {
	service, _, _ := newService(t)

	err := service.Delete(context.Background(), "ghost")
	assert.True(t, persistence.IsDefinitionNotFound(err))
}

func TestGetAndList(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newService(t)

	created, err := service.Create(ctx, validDefinition("wf-1", true))
	require.NoError(t, err)

	got, err := service.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)

	all, err := service.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestServiceErrorHelpers(t *testing.T) {
	vErr := &ValidationFailedError{DefinitionID: "wf-1", Problems: []validation.ValidationError{{Code: "cycle", Message: "boom"}}}
	assert.True(t, IsValidationError(vErr))
	assert.Contains(t, vErr.Error(), "wf-1")

	sErr := &ServiceError{Op: "workflow.create", Code: "conflict", Message: "duplicate", Err: ErrConflict}
	assert.True(t, IsConflictError(sErr))
	assert.False(t, IsValidationError(sErr))
}
