package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/campusflow/campusflow/pkg/models"
)

// runLoop executes the loop node's downstream subgraph once per input item,
// sequentially, stopping at the maxIterations bound. Every iteration tags its
// NodeExecution records with the iteration index (1-based).
func (r *run) runLoop(ctx context.Context, node *models.Node, inputs map[string]any) (map[string]any, error) {
	items, err := loopItems(node.Config, inputs)
	if err != nil {
		return nil, err
	}

	limit := loopMaxIterations(node.Config)

	count := len(items)
	if limit > 0 && limit < count {
		count = limit
	}

	reachable := r.graph.ReachableFromTriggers()
	members := make(map[string]bool)

	for id := range r.graph.SubgraphFrom(node.ID) {
		if reachable[id] {
			members[id] = true
		}
	}

	for i := range count {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.cancelCh:
			return nil, errCancelled
		default:
		}

		r.logger.InfoContext(ctx, "Starting loop iteration",
			"node_id", node.ID, "iteration", i+1, "of", count)

		seed := map[string]any{"item": items[i], "index": i}

		if err := r.runSubgraph(ctx, node.ID, members, seed, i+1); err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i+1, err)
		}
	}

	return map[string]any{"iterations": count, "items": len(items)}, nil
}

// runSubgraph executes one iteration of a loop body sequentially in
// topological order. ownerOutputs stands in for the loop node's emissions so
// edges out of the loop deliver the current item into the body.
func (r *run) runSubgraph(ctx context.Context, ownerID string, members map[string]bool, ownerOutputs map[string]any, iteration int) error {
	local := map[string]map[string]any{ownerID: ownerOutputs}
	noOutput := make(map[string]bool)
	consumed := make(map[string]bool)

	for _, id := range r.order {
		if !members[id] || consumed[id] {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.cancelCh:
			return errCancelled
		default:
		}

		node, _ := r.graph.Node(id)

		inputs := make(map[string]any)
		fed := false
		starved := false

		for _, e := range r.graph.IncomingEdges(id) {
			src := e.SourceNodeID

			var emitted map[string]any

			if src == ownerID || members[src] {
				if !noOutput[src] {
					emitted = local[src]
				}
			} else {
				// Input from outside the loop body, read as of this iteration.
				emitted = r.outerOutputs(src)
			}

			value, ok := emitted[e.SourceOutputKey]
			if ok {
				inputs[e.TargetInputKey] = value
				fed = true
			} else if r.requiredInput(id, e.TargetInputKey) {
				starved = true
			}
		}

		if starved || !fed {
			noOutput[id] = true
			r.recordSkip(node, iteration)

			continue
		}

		// A nested loop drives its own subgraph; keep this walk off it.
		if node.Type == models.NodeTypeLoop {
			for member := range r.graph.SubgraphFrom(id) {
				if members[member] {
					consumed[member] = true
				}
			}
		}

		outputs, err := r.executeNode(ctx, id, inputs, iteration)
		if err != nil {
			if errors.Is(err, errCancelled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}

			if r.def.Settings.ErrorHandling == models.ErrorHandlingContinue {
				noOutput[id] = true

				continue
			}

			return err
		}

		local[id] = outputs
	}

	return nil
}

func loopItems(config, inputs map[string]any) ([]any, error) {
	if items, ok := inputs["items"].([]any); ok {
		return items, nil
	}

	if items, ok := config["items"].([]any); ok {
		return items, nil
	}

	return nil, errors.New("loop node requires an items array")
}

func loopMaxIterations(config map[string]any) int {
	switch v := config["maxIterations"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
