package actions

import (
	"context"
	"fmt"
	"log/slog"
)

// Registry holds the registered adapter factories and is the single entry
// point the engine uses to invoke actions.
type Registry struct {
	logger    *slog.Logger
	factories map[string]Factory
}

// NewRegistry creates an empty adapter registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[string]Factory),
	}
}

// Register adds an adapter factory, replacing any previous registration for
// the same action type.
func (r *Registry) Register(factory Factory) {
	r.factories[factory.ID()] = factory
}

// Schema returns the config schema for an action type. Implements the
// validation SchemaProvider contract.
func (r *Registry) Schema(actionType string) (map[string]any, bool) {
	factory, ok := r.factories[actionType]
	if !ok {
		return nil, false
	}

	return factory.Schema(), true
}

// Types returns the registered action type ids.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.factories))
	for id := range r.factories {
		types = append(types, id)
	}

	return types
}

// HealthCheck reports whether any adapters are registered.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.factories) == 0 {
		return "No action adapters registered", false
	}

	return fmt.Sprintf("%d action adapters registered", len(r.factories)), true
}

type invokeResult struct {
	outputs map[string]any
	err     error
}

// Invoke creates the adapter for actionType from config and executes it with
// the given inputs under a per-call deadline. A timeout or unreachable
// backend comes back as an ordinary error for the engine's failure policy.
func (r *Registry) Invoke(ctx context.Context, actionType string, config, inputs map[string]any) (map[string]any, error) {
	factory, ok := r.factories[actionType]
	if !ok {
		return nil, fmt.Errorf("action type %q not registered", actionType)
	}

	adapter, err := factory.Create(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s adapter: %w", actionType, err)
	}

	timeout := CallTimeout(config)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := r.logger.With("action_type", actionType)

	resultCh := make(chan invokeResult, 1)

	go func() {
		outputs, err := adapter.Execute(callCtx, inputs, logger)
		resultCh <- invokeResult{outputs: outputs, err: err}
	}()

	select {
	case <-callCtx.Done():
		return nil, fmt.Errorf("action %s did not finish within %s: %w", actionType, timeout, callCtx.Err())
	case result := <-resultCh:
		return result.outputs, result.err
	}
}
