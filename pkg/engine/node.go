package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/campusflow/campusflow/pkg/events"
	"github.com/campusflow/campusflow/pkg/models"
	"github.com/campusflow/campusflow/pkg/otelhelper"
)

// executeNode runs one node and records its NodeExecution. iteration is
// non-zero for nodes run inside a loop body.
func (r *run) executeNode(ctx context.Context, nodeID string, inputs map[string]any, iteration int) (map[string]any, error) {
	node, ok := r.graph.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("node %s not found in definition %s", nodeID, r.def.ID)
	}

	ctx, span := otelhelper.StartSpan(ctx, r.engine.tracer, "workflow.node",
		attribute.String(otelhelper.ExecutionIDKey, r.exec.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, node.Type),
		attribute.Int(otelhelper.IterationKey, iteration),
	)
	defer span.End()

	started := time.Now().UTC()
	idx := r.startRecord(node, inputs, iteration)

	var (
		outputs  map[string]any
		attempts int
		err      error
	)

	switch node.Type {
	case models.NodeTypeIfCondition:
		attempts = 1
		outputs, err = r.evaluateConditionNode(node, inputs)
	case models.NodeTypeLoop:
		attempts = 1
		outputs, err = r.runLoop(ctx, node, inputs)
	default:
		outputs, attempts, err = r.invokeWithRetry(ctx, node, inputs)
	}

	r.finishRecord(idx, outputs, attempts, err)

	duration := time.Since(started)

	if err != nil {
		r.noteFailure(node.ID, err)
		otelhelper.SetError(span, err, attribute.String(otelhelper.NodeIDKey, node.ID))
		r.appendLog(models.LogLevelError, "", node.ID,
			fmt.Sprintf("node %s failed: %v", node.ID, err),
			map[string]any{"attempts": attempts})
		r.engine.publish(ctx, r.exec.ID, events.NodeFailed{
			BaseEvent:   events.NewBaseEvent(events.NodeFailedEvent, r.def.ID),
			ExecutionID: r.exec.ID,
			NodeID:      node.ID,
			Error:       err.Error(),
			Attempts:    attempts,
			Duration:    duration,
		})
		r.save(ctx)

		return nil, fmt.Errorf("node %s: %w", node.ID, err)
	}

	r.engine.publish(ctx, r.exec.ID, events.NodeFinished{
		BaseEvent:   events.NewBaseEvent(events.NodeFinishedEvent, r.def.ID),
		ExecutionID: r.exec.ID,
		NodeID:      node.ID,
		Outputs:     outputs,
		Duration:    duration,
	})
	r.save(ctx)

	return outputs, nil
}

// evaluateConditionNode decides the branch of an if_condition node and emits
// exactly one of its two outputs, passing the node's inputs through it.
func (r *run) evaluateConditionNode(node *models.Node, inputs map[string]any) (map[string]any, error) {
	result, err := evaluateCondition(node.Config, inputs)
	if err != nil {
		return nil, err
	}

	key := models.OutputKeyFalse
	if result {
		key = models.OutputKeyTrue
	}

	return map[string]any{key: inputs}, nil
}

// invokeWithRetry calls the node's action adapter, re-invoking with
// exponential backoff when the definition's error handling is retry.
// Returns the attempt count actually used.
func (r *run) invokeWithRetry(ctx context.Context, node *models.Node, inputs map[string]any) (map[string]any, int, error) {
	maxAttempts := 1
	if r.def.Settings.ErrorHandling == models.ErrorHandlingRetry {
		maxAttempts += r.def.Settings.RetryAttempts
	}

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := Backoff(attempt - 1)
			r.logger.WarnContext(ctx, "Retrying node",
				"node_id", node.ID, "attempt", attempt, "delay", delay, "error", lastErr)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()

				return nil, attempt - 1, ctx.Err()
			case <-r.cancelCh:
				timer.Stop()

				return nil, attempt - 1, errCancelled
			}
		}

		outputs, err := r.engine.registry.Invoke(ctx, node.Type, node.Config, inputs)
		if err == nil {
			return outputs, attempt, nil
		}

		lastErr = err
	}

	return nil, maxAttempts, lastErr
}
