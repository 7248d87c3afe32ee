// Package models defines the core domain models for node-based workflow automation.
package models

import (
	"encoding/json"
	"time"
)

// TriggerType determines how a workflow definition is started.
type TriggerType string

const (
	TriggerTypeEvent    TriggerType = "event"    // Started by a named system event
	TriggerTypeSchedule TriggerType = "schedule" // Started by a cron schedule
	TriggerTypeManual   TriggerType = "manual"   // Started by a direct request
)

// Trigger describes the condition that starts an execution of a definition.
// EventName is set for event triggers, CronExpression for schedule triggers.
type Trigger struct {
	Type           TriggerType `json:"type"                      validate:"required,oneof=event schedule manual"`
	EventName      string      `json:"event_name,omitempty"`
	CronExpression string      `json:"cron_expression,omitempty"`
}

// ErrorHandling selects the per-definition failure policy.
type ErrorHandling string

const (
	ErrorHandlingStop     ErrorHandling = "stop"     // First terminal node failure fails the execution
	ErrorHandlingContinue ErrorHandling = "continue" // Independent branches keep running
	ErrorHandlingRetry    ErrorHandling = "retry"    // Retry failing nodes, then behave like stop
)

// Default execution settings applied when a definition leaves them unset.
const (
	DefaultTimeoutSeconds = 300
	DefaultRetryAttempts  = 0
)

// Settings holds per-definition execution tuning.
type Settings struct {
	TimeoutSeconds int           `json:"timeout_seconds" validate:"min=0"`
	RetryAttempts  int           `json:"retry_attempts"  validate:"min=0,max=10"`
	ErrorHandling  ErrorHandling `json:"error_handling"  validate:"omitempty,oneof=stop continue retry"`
}

// Normalized returns a copy with defaults filled in.
func (s Settings) Normalized() Settings {
	if s.TimeoutSeconds <= 0 {
		s.TimeoutSeconds = DefaultTimeoutSeconds
	}

	if s.RetryAttempts < 0 {
		s.RetryAttempts = DefaultRetryAttempts
	}

	if s.ErrorHandling == "" {
		s.ErrorHandling = ErrorHandlingStop
	}

	return s
}

// Timeout returns the execution wall-clock limit.
func (s Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// WorkflowDefinition is a saved, named workflow graph plus trigger and settings.
// Mutations go through the definition service, which re-validates the whole
// graph before an active definition is persisted.
type WorkflowDefinition struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"       validate:"required,min=3"`
	Description string    `json:"description"`
	Trigger     Trigger   `json:"trigger"    validate:"required"`
	Nodes       []*Node   `json:"nodes"`
	Edges       []*Edge   `json:"edges"`
	Settings    Settings  `json:"settings"`
	IsActive    bool      `json:"is_active"`
	Owner       string    `json:"owner"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the definition. The engine snapshots a
// definition at execution start so a concurrent edit never mutates an
// in-flight execution's view of the graph.
func (d *WorkflowDefinition) Clone() *WorkflowDefinition {
	data, err := json.Marshal(d)
	if err != nil {
		clone := *d

		return &clone
	}

	clone := &WorkflowDefinition{}
	if err := json.Unmarshal(data, clone); err != nil {
		shallow := *d

		return &shallow
	}

	return clone
}

// NodeByID returns the node with the given id, if present.
func (d *WorkflowDefinition) NodeByID(id string) (*Node, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}

	return nil, false
}

// TriggerNodes returns the definition's trigger-category nodes.
func (d *WorkflowDefinition) TriggerNodes() []*Node {
	nodes := make([]*Node, 0, 1)

	for _, n := range d.Nodes {
		if n.Category == CategoryTrigger {
			nodes = append(nodes, n)
		}
	}

	return nodes
}
