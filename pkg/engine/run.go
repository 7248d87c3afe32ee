package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/campusflow/campusflow/pkg/events"
	"github.com/campusflow/campusflow/pkg/graph"
	"github.com/campusflow/campusflow/pkg/models"
	"github.com/campusflow/campusflow/pkg/otelhelper"
)

var errCancelled = errors.New("execution cancelled")

// run drives one execution from start to terminal status. The coordinator
// loop is the only goroutine that touches scheduling state; workers only
// execute nodes and report back.
type run struct {
	engine  *Engine
	logger  *slog.Logger
	def     *models.WorkflowDefinition
	graph   *graph.Graph
	order   []string
	exec    *models.Execution
	payload map[string]any

	mu      sync.Mutex
	outputs map[string]map[string]any

	anyFailed       bool
	firstFailedNode string
	firstErr        error

	cancelOnce   sync.Once
	cancelCh     chan struct{}
	cancelReason string

	done chan struct{}
}

// outcome is the terminal verdict of the scheduling loop.
type outcome struct {
	status   models.ExecutionStatus
	timedOut bool
	nodeID   string
	err      error
}

type job struct {
	nodeID string
	inputs map[string]any
}

type nodeResult struct {
	nodeID  string
	outputs map[string]any
	err     error
}

func (r *run) requestCancel(reason string) {
	r.cancelOnce.Do(func() {
		r.mu.Lock()
		r.cancelReason = reason
		r.mu.Unlock()

		close(r.cancelCh)
	})
}

func (r *run) run(ctx context.Context) {
	ctx, span := otelhelper.StartSpan(ctx, r.engine.tracer, "workflow.execute",
		attribute.String(otelhelper.DefinitionIDKey, r.def.ID),
		attribute.String(otelhelper.DefinitionNameKey, r.def.Name),
		attribute.String(otelhelper.ExecutionIDKey, r.exec.ID),
		attribute.String(otelhelper.TriggerTypeKey, string(r.def.Trigger.Type)),
	)
	defer span.End()

	r.logger.InfoContext(ctx, "Starting execution",
		"nodes", len(r.order),
		"timeout", r.def.Settings.Timeout(),
		"error_handling", r.def.Settings.ErrorHandling)

	out := r.schedule(ctx)

	r.finalize(ctx, span, out)
}

// schedule runs Kahn-style readiness over the reachable, non-loop-owned
// nodes. Each node carries a counter of unsettled incoming edges; a node
// whose counter reaches zero either runs, or is settled as skipped when a
// required input went unfilled or no upstream delivered anything.
func (r *run) schedule(ctx context.Context) outcome {
	reachable := r.graph.ReachableFromTriggers()

	// Nodes downstream of a loop belong to the loop's body and are executed
	// per iteration by the loop node itself, never by this scheduler.
	loopOwned := make(map[string]bool)

	for id := range reachable {
		node, _ := r.graph.Node(id)
		if node.Type == models.NodeTypeLoop {
			for member := range r.graph.SubgraphFrom(id) {
				loopOwned[member] = true
			}
		}
	}

	schedulable := make(map[string]bool, len(reachable))

	for id := range reachable {
		if !loopOwned[id] {
			schedulable[id] = true
		}
	}

	// loopOwners maps each body member to the schedulable loop nodes whose
	// iterations execute it.
	loopOwners := make(map[string][]string)

	for id := range schedulable {
		node, _ := r.graph.Node(id)
		if node.Type != models.NodeTypeLoop {
			continue
		}

		for member := range r.graph.SubgraphFrom(id) {
			if reachable[member] {
				loopOwners[member] = append(loopOwners[member], id)
			}
		}
	}

	deps := make(map[string]int, len(schedulable))
	inputs := make(map[string]map[string]any, len(schedulable))
	fed := make(map[string]bool)
	starved := make(map[string]bool)
	settled := make(map[string]bool, len(schedulable))

	for id := range schedulable {
		for _, e := range r.graph.IncomingEdges(id) {
			if schedulable[e.SourceNodeID] {
				deps[id]++
			}
		}
	}

	// A loop may not start before every outside node feeding its body has
	// settled, or iterations would read emissions that do not exist yet.
	// Edges from an owning loop itself carry per-iteration values, not
	// ordering.
	for member, owners := range loopOwners {
		for _, e := range r.graph.IncomingEdges(member) {
			if !schedulable[e.SourceNodeID] || slices.Contains(owners, e.SourceNodeID) {
				continue
			}

			for _, owner := range owners {
				deps[owner]++
			}
		}
	}

	pending := len(schedulable)
	queue := make([]string, 0, len(schedulable))

	var settleSkip func(id string)

	// release frees one dependency of target. A node whose last dependency
	// settles either runs, or settles as skipped when a required input went
	// unfilled or no upstream delivered anything at all.
	release := func(target string) {
		deps[target]--
		if deps[target] == 0 {
			if starved[target] || !fed[target] {
				settleSkip(target)
			} else {
				queue = append(queue, target)
			}
		}
	}

	// deliver settles a node's emissions into its successors' input maps.
	// emitted == nil means the node produced nothing (failed or skipped);
	// an unfilled input only starves the successor when it is required.
	deliver := func(id string, emitted map[string]any) {
		settled[id] = true

		if emitted != nil {
			r.mu.Lock()
			r.outputs[id] = emitted
			r.mu.Unlock()
		}

		for _, e := range r.graph.OutgoingEdges(id) {
			target := e.TargetNodeID
			if !schedulable[target] {
				// Feeding a loop body from outside: order the owning loop
				// after this node; the body reads the emission itself.
				if !slices.Contains(loopOwners[target], id) {
					for _, owner := range loopOwners[target] {
						release(owner)
					}
				}

				continue
			}

			var (
				value any
				ok    bool
			)

			if emitted != nil {
				value, ok = emitted[e.SourceOutputKey]
			}

			if ok {
				if inputs[target] == nil {
					inputs[target] = make(map[string]any)
				}

				inputs[target][e.TargetInputKey] = value
				fed[target] = true
			} else if r.requiredInput(target, e.TargetInputKey) {
				starved[target] = true
			}

			release(target)
		}
	}

	settleSkip = func(id string) {
		node, _ := r.graph.Node(id)
		r.recordSkip(node, 0)
		pending--
		deliver(id, nil)
	}

	// Trigger nodes settle instantly: they only seed the matched payload
	// into their outputs and produce no NodeExecution record.
	for _, id := range r.order {
		if !schedulable[id] {
			continue
		}

		node, _ := r.graph.Node(id)
		if !node.IsTriggerNode() {
			continue
		}

		pending--
		deliver(id, r.triggerOutputs(node))
	}

	jobs := make(chan job)
	results := make(chan nodeResult)

	var wg sync.WaitGroup

	for range r.engine.workers {
		wg.Add(1)

		go func() {
			defer wg.Done()
			r.worker(ctx, jobs, results)
		}()
	}

	defer func() {
		close(jobs)
		wg.Wait()
	}()

	inflight := 0

	// drain waits out in-flight nodes after an abort. They are allowed to
	// finish and keep their records, but their emissions go nowhere.
	drain := func() {
		for ; inflight > 0; inflight-- {
			res := <-results
			settled[res.nodeID] = true
		}
	}

	for pending > 0 {
		select {
		case <-r.cancelCh:
			drain()
			r.skipUnsettled(schedulable, settled)

			return outcome{status: models.ExecutionStatusCancelled}
		case <-ctx.Done():
			drain()
			r.skipUnsettled(schedulable, settled)

			return outcome{status: models.ExecutionStatusFailed, timedOut: errors.Is(ctx.Err(), context.DeadlineExceeded), err: ctx.Err()}
		default:
		}

		for len(queue) > 0 && inflight < r.engine.workers {
			id := queue[0]
			queue = queue[1:]
			jobs <- job{nodeID: id, inputs: inputs[id]}
			inflight++
		}

		if inflight == 0 {
			break
		}

		select {
		case res := <-results:
			inflight--
			pending--

			if res.err != nil {
				// An abort signal outranks the node failure it likely caused.
				select {
				case <-r.cancelCh:
					drain()
					r.skipUnsettled(schedulable, settled)

					return outcome{status: models.ExecutionStatusCancelled}
				case <-ctx.Done():
					drain()
					r.skipUnsettled(schedulable, settled)

					return outcome{status: models.ExecutionStatusFailed, timedOut: errors.Is(ctx.Err(), context.DeadlineExceeded), err: ctx.Err()}
				default:
				}

				if r.def.Settings.ErrorHandling == models.ErrorHandlingContinue {
					deliver(res.nodeID, nil)

					continue
				}

				drain()
				r.skipUnsettled(schedulable, settled)

				return outcome{status: models.ExecutionStatusFailed, nodeID: res.nodeID, err: res.err}
			}

			deliver(res.nodeID, res.outputs)

		case <-r.cancelCh:
			drain()
			r.skipUnsettled(schedulable, settled)

			return outcome{status: models.ExecutionStatusCancelled}

		case <-ctx.Done():
			drain()
			r.skipUnsettled(schedulable, settled)

			return outcome{status: models.ExecutionStatusFailed, timedOut: errors.Is(ctx.Err(), context.DeadlineExceeded), err: ctx.Err()}
		}
	}

	if failed, nodeID, err := r.failure(); failed {
		return outcome{status: models.ExecutionStatusFailed, nodeID: nodeID, err: err}
	}

	return outcome{status: models.ExecutionStatusCompleted}
}

// noteFailure remembers the first node failure so a continue-policy run can
// still end as failed.
func (r *run) noteFailure(nodeID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.anyFailed {
		r.anyFailed = true
		r.firstFailedNode = nodeID
		r.firstErr = err
	}
}

func (r *run) failure() (bool, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.anyFailed, r.firstFailedNode, r.firstErr
}

func (r *run) worker(ctx context.Context, jobs <-chan job, results chan<- nodeResult) {
	for j := range jobs {
		outputs, err := r.executeNode(ctx, j.nodeID, j.inputs, 0)
		results <- nodeResult{nodeID: j.nodeID, outputs: outputs, err: err}
	}
}

// triggerOutputs seeds the trigger payload into every declared output port.
func (r *run) triggerOutputs(node *models.Node) map[string]any {
	outputs := make(map[string]any, len(node.Outputs))

	for _, port := range node.Outputs {
		outputs[port.Key] = r.payload
	}

	if len(outputs) == 0 {
		outputs["payload"] = r.payload
	}

	return outputs
}

// skipUnsettled records a skipped NodeExecution for every schedulable node
// that never settled, in topological order.
func (r *run) skipUnsettled(schedulable, settled map[string]bool) {
	for _, id := range r.order {
		if !schedulable[id] || settled[id] {
			continue
		}

		node, _ := r.graph.Node(id)
		if node.IsTriggerNode() {
			continue
		}

		r.recordSkip(node, 0)
		settled[id] = true
	}
}

func (r *run) finalize(ctx context.Context, span trace.Span, out outcome) {
	now := time.Now().UTC()

	r.mu.Lock()
	r.exec.Status = out.status
	r.exec.CompletedAt = &now

	switch {
	case out.timedOut:
		r.exec.Error = fmt.Sprintf("execution timed out after %s", r.def.Settings.Timeout())
	case out.status == models.ExecutionStatusCancelled:
		if r.cancelReason != "" {
			r.exec.Error = r.cancelReason
		} else {
			r.exec.Error = "execution cancelled"
		}
	case out.err != nil:
		r.exec.Error = out.err.Error()
	}

	execError := r.exec.Error
	started := r.exec.StartedAt
	r.mu.Unlock()

	if out.timedOut {
		r.appendLog(models.LogLevelError, models.LogCodeTimeout, out.nodeID, execError, nil)
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := r.engine.persist.SaveExecution(saveCtx, r.snapshot()); err != nil {
		r.logger.ErrorContext(saveCtx, "Failed to persist terminal execution", "error", err)
	}

	durationMs := now.Sub(started).Milliseconds()

	switch {
	case out.timedOut:
		r.engine.publish(saveCtx, r.exec.ID, events.ExecutionTimeout{
			BaseEvent:      events.NewBaseEvent(events.ExecutionTimeoutEvent, r.def.ID),
			ExecutionID:    r.exec.ID,
			DurationMs:     durationMs,
			TimeoutLimitMs: r.def.Settings.Timeout().Milliseconds(),
		})
	case out.status == models.ExecutionStatusCancelled:
		r.engine.publish(saveCtx, r.exec.ID, events.ExecutionCancelled{
			BaseEvent:   events.NewBaseEvent(events.ExecutionCancelledEvent, r.def.ID),
			ExecutionID: r.exec.ID,
			DurationMs:  durationMs,
			Reason:      execError,
		})
	case out.status == models.ExecutionStatusFailed:
		r.engine.publish(saveCtx, r.exec.ID, events.ExecutionFailed{
			BaseEvent:     events.NewBaseEvent(events.ExecutionFailedEvent, r.def.ID),
			ExecutionID:   r.exec.ID,
			DurationMs:    durationMs,
			NodeID:        out.nodeID,
			Error:         execError,
			NodesExecuted: r.completedCount(),
		})
	default:
		r.engine.publish(saveCtx, r.exec.ID, events.ExecutionCompleted{
			BaseEvent:     events.NewBaseEvent(events.ExecutionCompletedEvent, r.def.ID),
			ExecutionID:   r.exec.ID,
			DurationMs:    durationMs,
			NodesExecuted: r.completedCount(),
		})
	}

	if out.err != nil {
		otelhelper.SetError(span, out.err)
	}

	r.logger.InfoContext(ctx, "Execution finished",
		"status", out.status, "duration_ms", durationMs, "error", execError)
}

// requiredInput reports whether the target input must be populated before
// the node may run. Undeclared inputs are treated as required.
func (r *run) requiredInput(nodeID, key string) bool {
	node, ok := r.graph.Node(nodeID)
	if !ok {
		return true
	}

	spec, ok := node.InputSpec(key)
	if !ok {
		return true
	}

	return spec.Required
}

func (r *run) outerOutputs(nodeID string) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.outputs[nodeID]
}

func (r *run) completedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0

	for _, ne := range r.exec.NodeExecutions {
		if ne.Status == models.NodeStatusCompleted {
			count++
		}
	}

	return count
}

func (r *run) startRecord(node *models.Node, inputs map[string]any, iteration int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	r.exec.NodeExecutions = append(r.exec.NodeExecutions, models.NodeExecution{
		NodeID:    node.ID,
		Status:    models.NodeStatusRunning,
		Inputs:    inputs,
		StartedAt: &now,
		Iteration: iteration,
	})

	return len(r.exec.NodeExecutions) - 1
}

func (r *run) finishRecord(idx int, outputs map[string]any, attempts int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	record := &r.exec.NodeExecutions[idx]
	record.CompletedAt = &now
	record.Attempts = attempts

	if err != nil {
		record.Status = models.NodeStatusFailed
		record.Error = err.Error()

		return
	}

	record.Status = models.NodeStatusCompleted
	record.Outputs = outputs
}

func (r *run) recordSkip(node *models.Node, iteration int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.exec.NodeExecutions = append(r.exec.NodeExecutions, models.NodeExecution{
		NodeID:    node.ID,
		Status:    models.NodeStatusSkipped,
		Iteration: iteration,
	})
}

func (r *run) appendLog(level models.LogLevel, code, nodeID, message string, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.exec.Logs = append(r.exec.Logs, models.LogEntry{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Level:     level,
		Code:      code,
		NodeID:    nodeID,
		Message:   message,
		Fields:    fields,
	})
}

// snapshot copies the execution record so persistence can marshal it while
// workers keep appending.
func (r *run) snapshot() *models.Execution {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *r.exec
	clone.NodeExecutions = make([]models.NodeExecution, len(r.exec.NodeExecutions))
	copy(clone.NodeExecutions, r.exec.NodeExecutions)
	clone.Logs = make([]models.LogEntry, len(r.exec.Logs))
	copy(clone.Logs, r.exec.Logs)

	return &clone
}

// save persists intermediate progress. Failures are logged, not fatal; the
// terminal save in finalize is the authoritative one.
func (r *run) save(ctx context.Context) {
	if err := r.engine.persist.SaveExecution(ctx, r.snapshot()); err != nil {
		r.logger.WarnContext(ctx, "Failed to persist execution progress", "error", err)
	}
}
