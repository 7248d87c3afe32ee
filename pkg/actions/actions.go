// Package actions defines the uniform contract for action adapters and the
// registry the engine invokes them through. Adapters are thin façades: the
// real email/SMS/webhook/database backends are external collaborators.
package actions

import (
	"context"
	"log/slog"
	"time"
)

// Default per-call timeout applied when an adapter's config does not set one.
const DefaultCallTimeout = 30 * time.Second

// Adapter executes one action invocation. Implementations must honor ctx
// cancellation; the registry additionally guards every call with a deadline
// so a stuck backend surfaces as a node failure, never a silent hang.
type Adapter interface {
	Execute(ctx context.Context, inputs map[string]any, logger *slog.Logger) (map[string]any, error)
}

// Factory creates adapter instances for one action type and publishes the
// JSON schema its config must satisfy.
type Factory interface {
	Create(config map[string]any) (Adapter, error)
	ID() string
	Schema() map[string]any
}

// CallTimeout reads the per-call timeout from an adapter config.
func CallTimeout(config map[string]any) time.Duration {
	if v, ok := config["timeout_seconds"].(float64); ok && v > 0 {
		return time.Duration(v) * time.Second
	}

	if v, ok := config["timeout_seconds"].(int); ok && v > 0 {
		return time.Duration(v) * time.Second
	}

	return DefaultCallTimeout
}

// String reads a string config value, falling back to an input of the same
// key so design-time literals and edge-delivered values share one lookup.
func String(config, inputs map[string]any, key string) string {
	if v, ok := inputs[key].(string); ok && v != "" {
		return v
	}

	v, _ := config[key].(string)

	return v
}
