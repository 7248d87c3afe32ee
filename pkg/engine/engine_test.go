package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusflow/campusflow/pkg/actions"
	"github.com/campusflow/campusflow/pkg/models"
	"github.com/campusflow/campusflow/pkg/persistence/file"
)

type stubFactory struct {
	id string
	fn func(ctx context.Context, inputs map[string]any) (map[string]any, error)
}

func (f *stubFactory) Create(_ map[string]any) (actions.Adapter, error) {
	return &stubAdapter{fn: f.fn}, nil
}

func (f *stubFactory) ID() string { return f.id }

func (f *stubFactory) Schema() map[string]any {
	return map[string]any{"type": "object"}
}

type stubAdapter struct {
	fn func(ctx context.Context, inputs map[string]any) (map[string]any, error)
}

func (a *stubAdapter) Execute(ctx context.Context, inputs map[string]any, _ *slog.Logger) (map[string]any, error) {
	return a.fn(ctx, inputs)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEngine(t *testing.T, registry *actions.Registry) (*Engine, *file.Persistence) {
	t.Helper()

	persist := file.NewPersistence(t.TempDir())
	eng := New(testLogger(), persist, registry, nil, Config{})

	return eng, persist
}

func triggerNode() *models.Node {
	return &models.Node{
		ID:       "trigger",
		Name:     "Trigger",
		Category: models.CategoryTrigger,
		Type:     "event",
		Outputs:  []models.PortSpec{{Key: "payload", ValueType: models.ValueTypeJSON}},
	}
}

func actionNode(id, actionType string, config map[string]any) *models.Node {
	return &models.Node{
		ID:       id,
		Name:     id,
		Category: models.CategoryAction,
		Type:     actionType,
		Config:   config,
		Inputs:   []models.PortSpec{{Key: "main", ValueType: models.ValueTypeAny}},
		Outputs:  []models.PortSpec{{Key: "main", ValueType: models.ValueTypeAny}},
	}
}

func flowEdge(source, sourceKey, target, targetKey string) *models.Edge {
	return &models.Edge{
		ID:              source + "->" + target,
		SourceNodeID:    source,
		SourceOutputKey: sourceKey,
		TargetNodeID:    target,
		TargetInputKey:  targetKey,
	}
}

func testDefinition(id string, settings models.Settings, nodes []*models.Node, edges []*models.Edge) *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:       id,
		Name:     id + " definition",
		Trigger:  models.Trigger{Type: models.TriggerTypeEvent, EventName: "student.enrolled"},
		Nodes:    nodes,
		Edges:    edges,
		Settings: settings,
		IsActive: true,
	}
}

func runToTerminal(t *testing.T, eng *Engine, persist *file.Persistence, def *models.WorkflowDefinition, payload map[string]any) *models.Execution {
	t.Helper()

	handle, err := eng.Execute(context.Background(), def, payload)
	require.NoError(t, err)

	select {
	case <-handle.Done:
	case <-time.After(10 * time.Second):
		t.Fatal("execution did not reach a terminal status")
	}

	execution, err := persist.ExecutionByID(context.Background(), handle.ExecutionID)
	require.NoError(t, err)

	return execution
}

func nodeRecord(execution *models.Execution, nodeID string) (models.NodeExecution, bool) {
	for _, ne := range execution.NodeExecutions {
		if ne.NodeID == nodeID {
			return ne, true
		}
	}

	return models.NodeExecution{}, false
}

func TestExecute_SingleActionCompletes(t *testing.T) {
	var (
		mu     sync.Mutex
		seen   []map[string]any
		called int
	)

	registry := actions.NewRegistry(testLogger())
	registry.Register(&stubFactory{id: "send_email", fn: func(_ context.Context, inputs map[string]any) (map[string]any, error) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, inputs)
		called++

		return map[string]any{"main": "sent"}, nil
	}})

	eng, persist := newTestEngine(t, registry)

	def := testDefinition("welcome", models.Settings{},
		[]*models.Node{triggerNode(), actionNode("email", "send_email", nil)},
		[]*models.Edge{flowEdge("trigger", "payload", "email", "main")},
	)

	payload := map[string]any{"student_id": "s-1", "course": "algebra"}
	execution := runToTerminal(t, eng, persist, def, payload)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.NotNil(t, execution.CompletedAt)
	assert.Empty(t, execution.Error)
	assert.Equal(t, 1, called)

	// Trigger nodes settle without a NodeExecution record.
	require.Len(t, execution.NodeExecutions, 1)

	record, ok := nodeRecord(execution, "email")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusCompleted, record.Status)
	assert.Equal(t, 1, record.Attempts)
	assert.Equal(t, "sent", record.Outputs["main"])

	// The trigger payload arrived on the action's wired input.
	require.Len(t, seen, 1)
	assert.Equal(t, "s-1", seen[0]["main"].(map[string]any)["student_id"])

	assert.Equal(t, 0, eng.RunningCount())
}

func TestExecute_ChainRunsInOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)

	registry := actions.NewRegistry(testLogger())
	registry.Register(&stubFactory{id: "step", fn: func(_ context.Context, inputs map[string]any) (map[string]any, error) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "ran")

		return map[string]any{"main": len(order)}, nil
	}})

	eng, persist := newTestEngine(t, registry)

	def := testDefinition("chain", models.Settings{},
		[]*models.Node{
			triggerNode(),
			actionNode("a", "step", nil),
			actionNode("b", "step", nil),
			actionNode("c", "step", nil),
		},
		[]*models.Edge{
			flowEdge("trigger", "payload", "a", "main"),
			flowEdge("a", "main", "b", "main"),
			flowEdge("b", "main", "c", "main"),
		},
	)

	execution := runToTerminal(t, eng, persist, def, map[string]any{})

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	require.Len(t, execution.NodeExecutions, 3)

	for _, id := range []string{"a", "b", "c"} {
		record, ok := nodeRecord(execution, id)
		require.True(t, ok, id)
		assert.Equal(t, models.NodeStatusCompleted, record.Status, id)
	}
}

func TestExecute_TriggerOnlyDefinitionCompletes(t *testing.T) {
	eng, persist := newTestEngine(t, actions.NewRegistry(testLogger()))

	def := testDefinition("bare", models.Settings{}, []*models.Node{triggerNode()}, nil)

	execution := runToTerminal(t, eng, persist, def, map[string]any{"x": 1})

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Empty(t, execution.NodeExecutions)
}

func TestExecute_RejectsDefinitionWithoutTrigger(t *testing.T) {
	eng, _ := newTestEngine(t, actions.NewRegistry(testLogger()))

	def := testDefinition("no-trigger", models.Settings{},
		[]*models.Node{actionNode("a", "step", nil)}, nil)

	_, err := eng.Execute(context.Background(), def, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no trigger node")
}

func TestExecute_RejectsCyclicDefinition(t *testing.T) {
	eng, _ := newTestEngine(t, actions.NewRegistry(testLogger()))

	def := testDefinition("cyclic", models.Settings{},
		[]*models.Node{
			triggerNode(),
			actionNode("a", "step", nil),
			actionNode("b", "step", nil),
		},
		[]*models.Edge{
			flowEdge("trigger", "payload", "a", "main"),
			flowEdge("a", "main", "b", "main"),
			flowEdge("b", "main", "a", "main"),
		},
	)

	_, err := eng.Execute(context.Background(), def, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not executable")
}

func TestExecute_ConditionTakesOneBranch(t *testing.T) {
	var (
		mu  sync.Mutex
		ran []string
	)

	registry := actions.NewRegistry(testLogger())
	registry.Register(&stubFactory{id: "mark", fn: func(_ context.Context, inputs map[string]any) (map[string]any, error) {
		mu.Lock()
		defer mu.Unlock()
		ran = append(ran, "mark")

		return map[string]any{"main": true}, nil
	}})

	condition := &models.Node{
		ID:       "check",
		Name:     "Active check",
		Category: models.CategoryLogic,
		Type:     models.NodeTypeIfCondition,
		Config:   map[string]any{"input": "value.status", "operator": "eq", "value": "active"},
		Inputs:   []models.PortSpec{{Key: "value", ValueType: models.ValueTypeAny}},
		Outputs: []models.PortSpec{
			{Key: models.OutputKeyTrue, ValueType: models.ValueTypeAny},
			{Key: models.OutputKeyFalse, ValueType: models.ValueTypeAny},
		},
	}

	eng, persist := newTestEngine(t, registry)

	def := testDefinition("branching", models.Settings{},
		[]*models.Node{
			triggerNode(),
			condition,
			actionNode("on-active", "mark", nil),
			actionNode("on-inactive", "mark", nil),
		},
		[]*models.Edge{
			flowEdge("trigger", "payload", "check", "value"),
			flowEdge("check", models.OutputKeyTrue, "on-active", "main"),
			flowEdge("check", models.OutputKeyFalse, "on-inactive", "main"),
		},
	)

	execution := runToTerminal(t, eng, persist, def, map[string]any{"status": "active"})

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Len(t, ran, 1, "exactly one branch runs")

	check, ok := nodeRecord(execution, "check")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusCompleted, check.Status)
	assert.Contains(t, check.Outputs, models.OutputKeyTrue)
	assert.NotContains(t, check.Outputs, models.OutputKeyFalse)

	active, ok := nodeRecord(execution, "on-active")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusCompleted, active.Status)

	inactive, ok := nodeRecord(execution, "on-inactive")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusSkipped, inactive.Status)
}

func TestExecute_ConditionRejoinsAtMergeNode(t *testing.T) {
	var (
		mu     sync.Mutex
		merged []map[string]any
	)

	registry := actions.NewRegistry(testLogger())
	registry.Register(&stubFactory{id: "mark", fn: func(context.Context, map[string]any) (map[string]any, error) {
		return map[string]any{"main": "marked"}, nil
	}})
	registry.Register(&stubFactory{id: "join", fn: func(_ context.Context, inputs map[string]any) (map[string]any, error) {
		mu.Lock()
		defer mu.Unlock()
		merged = append(merged, inputs)

		return map[string]any{"main": true}, nil
	}})

	condition := &models.Node{
		ID:       "check",
		Name:     "Active check",
		Category: models.CategoryLogic,
		Type:     models.NodeTypeIfCondition,
		Config:   map[string]any{"input": "value.status", "operator": "eq", "value": "active"},
		Inputs:   []models.PortSpec{{Key: "value", ValueType: models.ValueTypeAny}},
		Outputs: []models.PortSpec{
			{Key: models.OutputKeyTrue, ValueType: models.ValueTypeAny},
			{Key: models.OutputKeyFalse, ValueType: models.ValueTypeAny},
		},
	}

	// Both arms feed the merge node; only the "a" input is required, so the
	// unfollowed arm must not starve it.
	merge := &models.Node{
		ID:       "merge",
		Name:     "merge",
		Category: models.CategoryAction,
		Type:     "join",
		Inputs: []models.PortSpec{
			{Key: "a", ValueType: models.ValueTypeAny, Required: true},
			{Key: "b", ValueType: models.ValueTypeAny},
		},
		Outputs: []models.PortSpec{{Key: "main", ValueType: models.ValueTypeAny}},
	}

	eng, persist := newTestEngine(t, registry)

	def := testDefinition("diamond", models.Settings{},
		[]*models.Node{
			triggerNode(),
			condition,
			actionNode("on-active", "mark", nil),
			actionNode("on-inactive", "mark", nil),
			merge,
		},
		[]*models.Edge{
			flowEdge("trigger", "payload", "check", "value"),
			flowEdge("check", models.OutputKeyTrue, "on-active", "main"),
			flowEdge("check", models.OutputKeyFalse, "on-inactive", "main"),
			flowEdge("on-active", "main", "merge", "a"),
			flowEdge("on-inactive", "main", "merge", "b"),
		},
	)

	execution := runToTerminal(t, eng, persist, def, map[string]any{"status": "active"})

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)

	record, ok := nodeRecord(execution, "merge")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusCompleted, record.Status, "the graph rejoins after the branch")

	inactive, ok := nodeRecord(execution, "on-inactive")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusSkipped, inactive.Status)

	require.Len(t, merged, 1)
	assert.Equal(t, "marked", merged[0]["a"])
	assert.NotContains(t, merged[0], "b", "the skipped arm delivers nothing")
}

func TestExecute_StopPolicySkipsDownstream(t *testing.T) {
	registry := actions.NewRegistry(testLogger())
	registry.Register(&stubFactory{id: "boom", fn: func(context.Context, map[string]any) (map[string]any, error) {
		return nil, errors.New("backend unavailable")
	}})
	registry.Register(&stubFactory{id: "ok", fn: func(context.Context, map[string]any) (map[string]any, error) {
		return map[string]any{"main": true}, nil
	}})

	eng, persist := newTestEngine(t, registry)

	def := testDefinition("stop", models.Settings{ErrorHandling: models.ErrorHandlingStop},
		[]*models.Node{
			triggerNode(),
			actionNode("bad", "boom", nil),
			actionNode("after", "ok", nil),
		},
		[]*models.Edge{
			flowEdge("trigger", "payload", "bad", "main"),
			flowEdge("bad", "main", "after", "main"),
		},
	)

	execution := runToTerminal(t, eng, persist, def, map[string]any{})

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Contains(t, execution.Error, "bad")
	assert.Contains(t, execution.Error, "backend unavailable")

	bad, ok := nodeRecord(execution, "bad")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusFailed, bad.Status)

	after, ok := nodeRecord(execution, "after")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusSkipped, after.Status)
}

func TestExecute_ContinuePolicyRunsIndependentBranches(t *testing.T) {
	var goodRan bool

	registry := actions.NewRegistry(testLogger())
	registry.Register(&stubFactory{id: "boom", fn: func(context.Context, map[string]any) (map[string]any, error) {
		return nil, errors.New("boom")
	}})
	registry.Register(&stubFactory{id: "ok", fn: func(context.Context, map[string]any) (map[string]any, error) {
		goodRan = true

		return map[string]any{"main": true}, nil
	}})

	eng, persist := newTestEngine(t, registry)

	def := testDefinition("continue", models.Settings{ErrorHandling: models.ErrorHandlingContinue},
		[]*models.Node{
			triggerNode(),
			actionNode("bad", "boom", nil),
			actionNode("good", "ok", nil),
			actionNode("after-bad", "ok", nil),
		},
		[]*models.Edge{
			flowEdge("trigger", "payload", "bad", "main"),
			flowEdge("trigger", "payload", "good", "main"),
			flowEdge("bad", "main", "after-bad", "main"),
		},
	)

	execution := runToTerminal(t, eng, persist, def, map[string]any{})

	// The independent branch finished, but any node failure still fails the run.
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.True(t, goodRan)

	good, ok := nodeRecord(execution, "good")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusCompleted, good.Status)

	afterBad, ok := nodeRecord(execution, "after-bad")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusSkipped, afterBad.Status)
}

func TestExecute_RetryPolicyRetriesThenFails(t *testing.T) {
	var attempts int

	registry := actions.NewRegistry(testLogger())
	registry.Register(&stubFactory{id: "flaky", fn: func(context.Context, map[string]any) (map[string]any, error) {
		attempts++

		return nil, errors.New("still down")
	}})

	eng, persist := newTestEngine(t, registry)

	def := testDefinition("retry", models.Settings{ErrorHandling: models.ErrorHandlingRetry, RetryAttempts: 2},
		[]*models.Node{triggerNode(), actionNode("call", "flaky", nil)},
		[]*models.Edge{flowEdge("trigger", "payload", "call", "main")},
	)

	execution := runToTerminal(t, eng, persist, def, map[string]any{})

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, 3, attempts, "initial attempt plus two retries")

	record, ok := nodeRecord(execution, "call")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusFailed, record.Status)
	assert.Equal(t, 3, record.Attempts)
}

func TestExecute_RetryPolicyRecovers(t *testing.T) {
	var attempts int

	registry := actions.NewRegistry(testLogger())
	registry.Register(&stubFactory{id: "flaky", fn: func(context.Context, map[string]any) (map[string]any, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("transient")
		}

		return map[string]any{"main": "recovered"}, nil
	}})

	eng, persist := newTestEngine(t, registry)

	def := testDefinition("retry-ok", models.Settings{ErrorHandling: models.ErrorHandlingRetry, RetryAttempts: 3},
		[]*models.Node{triggerNode(), actionNode("call", "flaky", nil)},
		[]*models.Edge{flowEdge("trigger", "payload", "call", "main")},
	)

	execution := runToTerminal(t, eng, persist, def, map[string]any{})

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)

	record, ok := nodeRecord(execution, "call")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusCompleted, record.Status)
	assert.Equal(t, 2, record.Attempts)
}

func TestExecute_LoopIteratesWithBound(t *testing.T) {
	var (
		mu    sync.Mutex
		items []any
	)

	registry := actions.NewRegistry(testLogger())
	registry.Register(&stubFactory{id: "echo", fn: func(_ context.Context, inputs map[string]any) (map[string]any, error) {
		mu.Lock()
		defer mu.Unlock()
		items = append(items, inputs["item"])

		return map[string]any{"main": inputs["item"]}, nil
	}})

	loop := &models.Node{
		ID:       "each-student",
		Name:     "Each student",
		Category: models.CategoryUtility,
		Type:     models.NodeTypeLoop,
		Config: map[string]any{
			"items":         []any{"ana", "bruno", "carla"},
			"maxIterations": float64(2),
		},
		Inputs:  []models.PortSpec{{Key: "main", ValueType: models.ValueTypeAny}},
		Outputs: []models.PortSpec{{Key: "item", ValueType: models.ValueTypeAny}},
	}

	body := &models.Node{
		ID:       "notify",
		Name:     "notify",
		Category: models.CategoryAction,
		Type:     "echo",
		Inputs:   []models.PortSpec{{Key: "item", ValueType: models.ValueTypeAny}},
		Outputs:  []models.PortSpec{{Key: "main", ValueType: models.ValueTypeAny}},
	}

	eng, persist := newTestEngine(t, registry)

	def := testDefinition("looping", models.Settings{},
		[]*models.Node{triggerNode(), loop, body},
		[]*models.Edge{
			flowEdge("trigger", "payload", "each-student", "main"),
			flowEdge("each-student", "item", "notify", "item"),
		},
	)

	execution := runToTerminal(t, eng, persist, def, map[string]any{})

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, []any{"ana", "bruno"}, items, "maxIterations bounds the walk")

	loopRecord, ok := nodeRecord(execution, "each-student")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusCompleted, loopRecord.Status)
	assert.EqualValues(t, 2, loopRecord.Outputs["iterations"])
	assert.EqualValues(t, 3, loopRecord.Outputs["items"])

	iterations := make([]int, 0, 2)

	for _, ne := range execution.NodeExecutions {
		if ne.NodeID == "notify" {
			assert.Equal(t, models.NodeStatusCompleted, ne.Status)
			iterations = append(iterations, ne.Iteration)
		}
	}

	assert.Equal(t, []int{1, 2}, iterations)
}

func TestExecute_LoopWaitsForOutsideDependency(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []map[string]any
	)

	registry := actions.NewRegistry(testLogger())
	registry.Register(&stubFactory{id: "fetch", fn: func(context.Context, map[string]any) (map[string]any, error) {
		time.Sleep(200 * time.Millisecond)

		return map[string]any{"main": "course-list"}, nil
	}})
	registry.Register(&stubFactory{id: "enroll", fn: func(_ context.Context, inputs map[string]any) (map[string]any, error) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, inputs)

		return map[string]any{"main": true}, nil
	}})

	loop := &models.Node{
		ID:       "each-student",
		Name:     "Each student",
		Category: models.CategoryUtility,
		Type:     models.NodeTypeLoop,
		Config:   map[string]any{"items": []any{"ana", "bruno"}},
		Inputs:   []models.PortSpec{{Key: "main", ValueType: models.ValueTypeAny}},
		Outputs:  []models.PortSpec{{Key: "item", ValueType: models.ValueTypeAny}},
	}

	// The body needs the catalog fetched outside the loop, so the loop may
	// not start an iteration before the fetch settles.
	body := &models.Node{
		ID:       "enroll",
		Name:     "enroll",
		Category: models.CategoryAction,
		Type:     "enroll",
		Inputs: []models.PortSpec{
			{Key: "item", ValueType: models.ValueTypeAny, Required: true},
			{Key: "catalog", ValueType: models.ValueTypeAny, Required: true},
		},
		Outputs: []models.PortSpec{{Key: "main", ValueType: models.ValueTypeAny}},
	}

	eng, persist := newTestEngine(t, registry)

	def := testDefinition("loop-ordering", models.Settings{},
		[]*models.Node{
			triggerNode(),
			actionNode("fetch-catalog", "fetch", nil),
			loop,
			body,
		},
		[]*models.Edge{
			flowEdge("trigger", "payload", "fetch-catalog", "main"),
			flowEdge("trigger", "payload", "each-student", "main"),
			flowEdge("each-student", "item", "enroll", "item"),
			flowEdge("fetch-catalog", "main", "enroll", "catalog"),
		},
	)

	execution := runToTerminal(t, eng, persist, def, map[string]any{})

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)

	require.Len(t, seen, 2, "one body run per item, none skipped")

	for _, inputs := range seen {
		assert.Equal(t, "course-list", inputs["catalog"])
	}

	for _, ne := range execution.NodeExecutions {
		if ne.NodeID == "enroll" {
			assert.Equal(t, models.NodeStatusCompleted, ne.Status)
		}
	}
}

func TestExecute_LoopWithoutItemsFails(t *testing.T) {
	loop := &models.Node{
		ID:       "each",
		Name:     "each",
		Category: models.CategoryUtility,
		Type:     models.NodeTypeLoop,
		Inputs:   []models.PortSpec{{Key: "main", ValueType: models.ValueTypeAny}},
		Outputs:  []models.PortSpec{{Key: "item", ValueType: models.ValueTypeAny}},
	}

	eng, persist := newTestEngine(t, actions.NewRegistry(testLogger()))

	def := testDefinition("loop-bad", models.Settings{},
		[]*models.Node{triggerNode(), loop},
		[]*models.Edge{flowEdge("trigger", "payload", "each", "main")},
	)

	execution := runToTerminal(t, eng, persist, def, map[string]any{})

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Contains(t, execution.Error, "items array")
}

func TestExecute_CancelStopsScheduling(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	var once sync.Once

	registry := actions.NewRegistry(testLogger())
	registry.Register(&stubFactory{id: "block", fn: func(context.Context, map[string]any) (map[string]any, error) {
		once.Do(func() { close(started) })
		<-release

		return map[string]any{"main": true}, nil
	}})

	eng, persist := newTestEngine(t, registry)

	def := testDefinition("cancellable", models.Settings{},
		[]*models.Node{
			triggerNode(),
			actionNode("slow", "block", nil),
			actionNode("after", "block", nil),
		},
		[]*models.Edge{
			flowEdge("trigger", "payload", "slow", "main"),
			flowEdge("slow", "main", "after", "main"),
		},
	)

	handle, err := eng.Execute(context.Background(), def, map[string]any{})
	require.NoError(t, err)

	<-started
	assert.True(t, eng.Cancel(handle.ExecutionID, "user requested"))

	close(release)

	select {
	case <-handle.Done:
	case <-time.After(10 * time.Second):
		t.Fatal("execution did not terminate after cancel")
	}

	execution, err := persist.ExecutionByID(context.Background(), handle.ExecutionID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCancelled, execution.Status)
	assert.Equal(t, "user requested", execution.Error)

	// The in-flight node was drained to completion; its successor never ran.
	after, ok := nodeRecord(execution, "after")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusSkipped, after.Status)

	assert.False(t, eng.Cancel(handle.ExecutionID, "again"), "terminal executions cannot be cancelled")
}

func TestExecute_TimeoutFailsExecution(t *testing.T) {
	registry := actions.NewRegistry(testLogger())
	registry.Register(&stubFactory{id: "hang", fn: func(ctx context.Context, _ map[string]any) (map[string]any, error) {
		<-ctx.Done()

		return nil, ctx.Err()
	}})
	registry.Register(&stubFactory{id: "ok", fn: func(context.Context, map[string]any) (map[string]any, error) {
		return map[string]any{"main": true}, nil
	}})

	eng, persist := newTestEngine(t, registry)

	def := testDefinition("slow", models.Settings{TimeoutSeconds: 1},
		[]*models.Node{
			triggerNode(),
			actionNode("hung", "hang", nil),
			actionNode("after", "ok", nil),
		},
		[]*models.Edge{
			flowEdge("trigger", "payload", "hung", "main"),
			flowEdge("hung", "main", "after", "main"),
		},
	)

	execution := runToTerminal(t, eng, persist, def, map[string]any{})

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Contains(t, execution.Error, "timed out")

	var foundTimeoutLog bool

	for _, entry := range execution.Logs {
		if entry.Code == models.LogCodeTimeout {
			foundTimeoutLog = true
		}
	}

	assert.True(t, foundTimeoutLog, "timeout is recorded in the execution log")

	after, ok := nodeRecord(execution, "after")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusSkipped, after.Status)
}

func TestCancelForDefinition(t *testing.T) {
	release := make(chan struct{})

	registry := actions.NewRegistry(testLogger())
	registry.Register(&stubFactory{id: "block", fn: func(context.Context, map[string]any) (map[string]any, error) {
		<-release

		return map[string]any{"main": true}, nil
	}})

	eng, persist := newTestEngine(t, registry)

	def := testDefinition("bulk", models.Settings{},
		[]*models.Node{triggerNode(), actionNode("slow", "block", nil)},
		[]*models.Edge{flowEdge("trigger", "payload", "slow", "main")},
	)

	first, err := eng.Execute(context.Background(), def, map[string]any{})
	require.NoError(t, err)
	second, err := eng.Execute(context.Background(), def, map[string]any{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return eng.RunningCount() == 2 }, time.Second, 10*time.Millisecond)

	cancelled := eng.CancelForDefinition(def.ID, "definition deactivated")
	assert.Equal(t, 2, cancelled)

	close(release)
	<-first.Done
	<-second.Done

	for _, handle := range []*Handle{first, second} {
		execution, err := persist.ExecutionByID(context.Background(), handle.ExecutionID)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusCancelled, execution.Status)
		assert.Equal(t, "definition deactivated", execution.Error)
	}
}

func TestExecute_SnapshotsDefinition(t *testing.T) {
	proceed := make(chan struct{})

	registry := actions.NewRegistry(testLogger())
	registry.Register(&stubFactory{id: "wait", fn: func(context.Context, map[string]any) (map[string]any, error) {
		<-proceed

		return map[string]any{"main": true}, nil
	}})

	eng, persist := newTestEngine(t, registry)

	def := testDefinition("snapshot", models.Settings{},
		[]*models.Node{triggerNode(), actionNode("a", "wait", nil)},
		[]*models.Edge{flowEdge("trigger", "payload", "a", "main")},
	)

	handle, err := eng.Execute(context.Background(), def, map[string]any{})
	require.NoError(t, err)

	// Mutating the caller's definition mid-flight must not affect the run.
	def.Nodes = nil
	def.Edges = nil

	close(proceed)

	select {
	case <-handle.Done:
	case <-time.After(10 * time.Second):
		t.Fatal("execution did not finish")
	}

	execution, err := persist.ExecutionByID(context.Background(), handle.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	require.Len(t, execution.NodeExecutions, 1)
}
