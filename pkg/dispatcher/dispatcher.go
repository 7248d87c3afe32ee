// Package dispatcher routes matched triggers to the execution engine. It
// holds the event-name index for event triggers, the cron scheduler for
// schedule triggers and the manual run entry point, and enforces the
// at-most-one-concurrent-scheduled-run rule per definition.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/campusflow/campusflow/pkg/engine"
	"github.com/campusflow/campusflow/pkg/eventbus"
	"github.com/campusflow/campusflow/pkg/models"
	"github.com/campusflow/campusflow/pkg/persistence"
)

// Dispatcher is the single entry point for all three trigger kinds.
type Dispatcher struct {
	logger  *slog.Logger
	persist persistence.Persistence
	engine  *engine.Engine
	bus     eventbus.EventBus

	mu    sync.Mutex
	index map[string][]string // event name -> active definition ids

	scheduler *scheduler
}

// New creates a dispatcher. Call Refresh to build the trigger index and
// Start to begin evaluating schedules.
func New(logger *slog.Logger, persist persistence.Persistence, eng *engine.Engine, bus eventbus.EventBus) *Dispatcher {
	d := &Dispatcher{
		logger:  logger,
		persist: persist,
		engine:  eng,
		bus:     bus,
		index:   make(map[string][]string),
	}
	d.scheduler = newScheduler(logger, d)

	return d
}

// Refresh rebuilds the event index and the schedule entries from the
// currently stored active definitions. Call it at startup and after any
// definition create, update or delete.
func (d *Dispatcher) Refresh(ctx context.Context) error {
	defs, err := d.persist.Definitions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load definitions: %w", err)
	}

	index := make(map[string][]string)
	schedules := make(map[string]string)

	for _, def := range defs {
		if !def.IsActive {
			continue
		}

		switch def.Trigger.Type {
		case models.TriggerTypeEvent:
			if def.Trigger.EventName != "" {
				index[def.Trigger.EventName] = append(index[def.Trigger.EventName], def.ID)
			}
		case models.TriggerTypeSchedule:
			if def.Trigger.CronExpression != "" {
				schedules[def.ID] = def.Trigger.CronExpression
			}
		case models.TriggerTypeManual:
		}
	}

	d.mu.Lock()
	d.index = index
	d.mu.Unlock()

	d.scheduler.reload(schedules)

	d.logger.InfoContext(ctx, "Trigger index refreshed",
		"event_names", len(index), "schedules", len(schedules))

	return nil
}

// Start begins cron evaluation. Stop with Stop.
func (d *Dispatcher) Start(ctx context.Context) error {
	if err := d.Refresh(ctx); err != nil {
		return err
	}

	d.scheduler.start()

	return nil
}

// Stop halts cron evaluation. In-flight executions are not affected.
func (d *Dispatcher) Stop() {
	d.scheduler.stop()
}

// Dispatch starts one execution per active definition whose event trigger
// matches the inbound event name. An event with no match is logged as a
// trigger mismatch, not surfaced as a failure.
func (d *Dispatcher) Dispatch(ctx context.Context, eventName string, payload map[string]any) ([]string, error) {
	d.mu.Lock()
	ids := append([]string(nil), d.index[eventName]...)
	d.mu.Unlock()

	if len(ids) == 0 {
		d.logger.WarnContext(ctx, "No active definition matches event",
			"code", models.LogCodeTriggerMismatch, "event_name", eventName)

		return []string{}, nil
	}

	executionIDs := make([]string, 0, len(ids))

	for _, id := range ids {
		def, err := d.persist.DefinitionByID(ctx, id)
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to load matched definition",
				"definition_id", id, "event_name", eventName, "error", err)

			continue
		}

		if !def.IsActive || def.Trigger.Type != models.TriggerTypeEvent || def.Trigger.EventName != eventName {
			// Index is stale for this definition; skip quietly.
			continue
		}

		handle, err := d.engine.Execute(ctx, def, payload)
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to start execution",
				"definition_id", id, "event_name", eventName, "error", err)

			continue
		}

		executionIDs = append(executionIDs, handle.ExecutionID)
	}

	d.logger.InfoContext(ctx, "Dispatched event",
		"event_name", eventName, "executions", len(executionIDs))

	return executionIDs, nil
}

// RunManual starts exactly one execution of the definition and returns its id.
func (d *Dispatcher) RunManual(ctx context.Context, definitionID string, payload map[string]any) (string, error) {
	def, err := d.persist.DefinitionByID(ctx, definitionID)
	if err != nil {
		return "", err
	}

	if !def.IsActive {
		return "", fmt.Errorf("definition %s is not active", definitionID)
	}

	handle, err := d.engine.Execute(ctx, def, payload)
	if err != nil {
		return "", err
	}

	return handle.ExecutionID, nil
}

// CancelForDefinition cancels every in-flight execution of a definition and
// releases its scheduled-run slot. Used when a definition is deleted or
// deactivated.
func (d *Dispatcher) CancelForDefinition(ctx context.Context, definitionID, reason string) int {
	cancelled := d.engine.CancelForDefinition(definitionID, reason)
	d.scheduler.release(definitionID)

	if cancelled > 0 {
		d.logger.InfoContext(ctx, "Cancelled in-flight executions",
			"definition_id", definitionID, "count", cancelled, "reason", reason)
	}

	return cancelled
}
