package actions

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFactory struct {
	id string
	fn func(ctx context.Context, inputs map[string]any) (map[string]any, error)
}

func (f *fakeFactory) Create(_ map[string]any) (Adapter, error) {
	return &fakeAdapter{fn: f.fn}, nil
}

func (f *fakeFactory) ID() string { return f.id }

func (f *fakeFactory) Schema() map[string]any {
	return map[string]any{"type": "object"}
}

type fakeAdapter struct {
	fn func(ctx context.Context, inputs map[string]any) (map[string]any, error)
}

func (a *fakeAdapter) Execute(ctx context.Context, inputs map[string]any, _ *slog.Logger) (map[string]any, error) {
	return a.fn(ctx, inputs)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRegistry_Invoke(t *testing.T) {
	registry := NewRegistry(testLogger())
	registry.Register(&fakeFactory{id: "echo", fn: func(_ context.Context, inputs map[string]any) (map[string]any, error) {
		return map[string]any{"echoed": inputs["value"]}, nil
	}})

	outputs, err := registry.Invoke(context.Background(), "echo", nil, map[string]any{"value": 42})
	require.NoError(t, err)
	assert.Equal(t, 42, outputs["echoed"])
}

func TestRegistry_InvokeUnknownType(t *testing.T) {
	registry := NewRegistry(testLogger())

	_, err := registry.Invoke(context.Background(), "missing", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestRegistry_InvokeSurfacesAdapterError(t *testing.T) {
	registry := NewRegistry(testLogger())
	registry.Register(&fakeFactory{id: "boom", fn: func(context.Context, map[string]any) (map[string]any, error) {
		return nil, errors.New("backend down")
	}})

	_, err := registry.Invoke(context.Background(), "boom", nil, nil)
	assert.EqualError(t, err, "backend down")
}

func TestRegistry_InvokeTimesOut(t *testing.T) {
	registry := NewRegistry(testLogger())
	registry.Register(&fakeFactory{id: "slow", fn: func(ctx context.Context, _ map[string]any) (map[string]any, error) {
		select {
		case <-time.After(10 * time.Second):
			return map[string]any{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}})

	start := time.Now()
	_, err := registry.Invoke(context.Background(), "slow", map[string]any{"timeout_seconds": float64(1)}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not finish")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRegistry_SchemaAndTypes(t *testing.T) {
	registry := NewRegistry(testLogger())
	registry.Register(&fakeFactory{id: "echo"})
	registry.Register(&fakeFactory{id: "boom"})

	schema, ok := registry.Schema("echo")
	require.True(t, ok)
	assert.Equal(t, "object", schema["type"])

	_, ok = registry.Schema("missing")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"echo", "boom"}, registry.Types())
}

func TestRegistry_HealthCheck(t *testing.T) {
	registry := NewRegistry(testLogger())

	_, healthy := registry.HealthCheck()
	assert.False(t, healthy)

	registry.Register(&fakeFactory{id: "echo"})

	msg, healthy := registry.HealthCheck()
	assert.True(t, healthy)
	assert.Contains(t, msg, "1 action adapters")
}

func TestCallTimeout(t *testing.T) {
	assert.Equal(t, DefaultCallTimeout, CallTimeout(nil))
	assert.Equal(t, DefaultCallTimeout, CallTimeout(map[string]any{"timeout_seconds": float64(0)}))
	assert.Equal(t, 5*time.Second, CallTimeout(map[string]any{"timeout_seconds": float64(5)}))
	assert.Equal(t, 7*time.Second, CallTimeout(map[string]any{"timeout_seconds": 7}))
}

func TestString(t *testing.T) {
	config := map[string]any{"to": "config@example.com"}
	inputs := map[string]any{"to": "input@example.com"}

	assert.Equal(t, "input@example.com", String(config, inputs, "to"))
	assert.Equal(t, "config@example.com", String(config, nil, "to"))
	assert.Equal(t, "", String(nil, nil, "to"))
}
