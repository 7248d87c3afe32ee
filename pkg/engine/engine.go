// Package engine runs workflow definitions: topological traversal with a
// dependency-counting barrier, bounded in-execution concurrency, conditional
// branching, bounded loop iteration, retry with exponential backoff, an
// execution-level timeout and cooperative cancellation. Every run produces a
// complete, queryable execution record.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/campusflow/campusflow/pkg/actions"
	"github.com/campusflow/campusflow/pkg/eventbus"
	"github.com/campusflow/campusflow/pkg/events"
	"github.com/campusflow/campusflow/pkg/graph"
	"github.com/campusflow/campusflow/pkg/models"
	"github.com/campusflow/campusflow/pkg/persistence"
)

// DefaultWorkerCount bounds how many nodes of one execution run concurrently.
const DefaultWorkerCount = 4

// Config tunes the engine.
type Config struct {
	WorkerCount int
	Tracer      trace.Tracer
}

// Handle is returned to the caller as soon as an execution is admitted.
// Done is closed when the execution reaches a terminal status.
type Handle struct {
	ExecutionID string
	Done        <-chan struct{}
}

// Engine starts and tracks executions. One goroutine drives each execution;
// within it, independent branches share a bounded worker pool.
type Engine struct {
	logger   *slog.Logger
	persist  persistence.ExecutionRepository
	registry *actions.Registry
	bus      eventbus.EventBus
	tracer   trace.Tracer
	workers  int

	mu      sync.Mutex
	running map[string]*run
}

// New creates an engine. The event bus may be nil for local (CLI) runs.
func New(logger *slog.Logger, persist persistence.ExecutionRepository, registry *actions.Registry, bus eventbus.EventBus, cfg Config) *Engine {
	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = DefaultWorkerCount
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("campusflow/engine")
	}

	return &Engine{
		logger:   logger,
		persist:  persist,
		registry: registry,
		bus:      bus,
		tracer:   tracer,
		workers:  workers,
		running:  make(map[string]*run),
	}
}

// Execute admits one execution of the definition and returns its handle
// immediately. The definition is snapshotted first, so later edits never
// change what this execution runs.
func (e *Engine) Execute(ctx context.Context, def *models.WorkflowDefinition, payload map[string]any) (*Handle, error) {
	def = def.Clone()
	def.Settings = def.Settings.Normalized()

	g := graph.New(def)

	if len(g.TriggerNodes()) == 0 {
		return nil, fmt.Errorf("definition %s has no trigger node", def.ID)
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, fmt.Errorf("definition %s is not executable: %w", def.ID, err)
	}

	execution := &models.Execution{
		ID:             uuid.New().String(),
		DefinitionID:   def.ID,
		Status:         models.ExecutionStatusRunning,
		StartedAt:      time.Now().UTC(),
		TriggerPayload: payload,
		NodeExecutions: make([]models.NodeExecution, 0),
		Logs:           make([]models.LogEntry, 0),
	}

	if err := e.persist.SaveExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to record execution start: %w", err)
	}

	done := make(chan struct{})

	r := &run{
		engine:   e,
		logger:   e.logger.With("definition_id", def.ID, "execution_id", execution.ID),
		def:      def,
		graph:    g,
		order:    order,
		exec:     execution,
		payload:  payload,
		outputs:  make(map[string]map[string]any),
		cancelCh: make(chan struct{}),
		done:     done,
	}

	e.mu.Lock()
	e.running[execution.ID] = r
	e.mu.Unlock()

	e.publish(ctx, execution.ID, events.ExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStartedEvent, def.ID),
		ExecutionID: execution.ID,
		TriggerType: string(def.Trigger.Type),
		TriggerData: payload,
	})

	runCtx, timeoutCancel := context.WithTimeout(context.WithoutCancel(ctx), def.Settings.Timeout())

	go func() {
		defer close(done)
		defer timeoutCancel()
		defer e.forget(execution.ID)

		r.run(runCtx)
	}()

	return &Handle{ExecutionID: execution.ID, Done: done}, nil
}

// Cancel requests cooperative cancellation of one execution. Running node
// invocations finish, no new node becomes eligible, and the execution
// terminates as cancelled. Returns false when the execution is not running.
func (e *Engine) Cancel(executionID, reason string) bool {
	e.mu.Lock()
	r, ok := e.running[executionID]
	e.mu.Unlock()

	if !ok {
		return false
	}

	r.requestCancel(reason)

	return true
}

// CancelForDefinition cancels every in-flight execution of a definition.
// Used when a definition is deleted or deactivated.
func (e *Engine) CancelForDefinition(definitionID, reason string) int {
	e.mu.Lock()
	targets := make([]*run, 0)

	for _, r := range e.running {
		if r.def.ID == definitionID {
			targets = append(targets, r)
		}
	}
	e.mu.Unlock()

	for _, r := range targets {
		r.requestCancel(reason)
	}

	return len(targets)
}

// RunningCount reports how many executions are currently in flight.
func (e *Engine) RunningCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.running)
}

func (e *Engine) forget(executionID string) {
	e.mu.Lock()
	delete(e.running, executionID)
	e.mu.Unlock()
}

func (e *Engine) publish(ctx context.Context, key string, event events.Event) {
	if e.bus == nil {
		return
	}

	if err := e.bus.Publish(ctx, key, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish lifecycle event",
			"event_type", event.GetType(), "error", err)
	}
}
