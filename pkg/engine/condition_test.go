package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateCondition_Operators(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]any
		inputs map[string]any
		want   bool
	}{
		{
			name:   "eq string match",
			config: map[string]any{"input": "status", "operator": "eq", "value": "active"},
			inputs: map[string]any{"status": "active"},
			want:   true,
		},
		{
			name:   "eq coerces numeric types",
			config: map[string]any{"input": "score", "operator": "eq", "value": float64(7)},
			inputs: map[string]any{"score": 7},
			want:   true,
		},
		{
			name:   "neq",
			config: map[string]any{"input": "status", "operator": "neq", "value": "active"},
			inputs: map[string]any{"status": "suspended"},
			want:   true,
		},
		{
			name:   "gt",
			config: map[string]any{"input": "score", "operator": "gt", "value": float64(70)},
			inputs: map[string]any{"score": float64(85)},
			want:   true,
		},
		{
			name:   "gte boundary",
			config: map[string]any{"input": "score", "operator": "gte", "value": float64(70)},
			inputs: map[string]any{"score": float64(70)},
			want:   true,
		},
		{
			name:   "lt false at boundary",
			config: map[string]any{"input": "score", "operator": "lt", "value": float64(70)},
			inputs: map[string]any{"score": float64(70)},
			want:   false,
		},
		{
			name:   "lte",
			config: map[string]any{"input": "score", "operator": "lte", "value": "70"},
			inputs: map[string]any{"score": float64(70)},
			want:   true,
		},
		{
			name:   "contains",
			config: map[string]any{"input": "email", "operator": "contains", "value": "@academy"},
			inputs: map[string]any{"email": "student@academy.example"},
			want:   true,
		},
		{
			name:   "exists present",
			config: map[string]any{"input": "email", "operator": "exists"},
			inputs: map[string]any{"email": "student@academy.example"},
			want:   true,
		},
		{
			name:   "exists missing",
			config: map[string]any{"input": "phone", "operator": "exists"},
			inputs: map[string]any{"email": "student@academy.example"},
			want:   false,
		},
		{
			name:   "dot path descends nested maps",
			config: map[string]any{"input": "payload.student.level", "operator": "eq", "value": "advanced"},
			inputs: map[string]any{"payload": map[string]any{"student": map[string]any{"level": "advanced"}}},
			want:   true,
		},
		{
			name:   "defaults to eq on value key",
			config: map[string]any{"value": "yes"},
			inputs: map[string]any{"value": "yes"},
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evaluateCondition(tt.config, tt.inputs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateCondition_Errors(t *testing.T) {
	_, err := evaluateCondition(
		map[string]any{"input": "name", "operator": "gt", "value": "abc"},
		map[string]any{"name": "not a number"},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "numeric operands")

	_, err = evaluateCondition(
		map[string]any{"input": "name", "operator": "matches"},
		map[string]any{"name": "x"},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported condition operator")
}
