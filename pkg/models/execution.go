package models

import "time"

// ExecutionStatus is the lifecycle state of one run of a definition.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// NodeExecutionStatus is the lifecycle state of one node within an execution.
type NodeExecutionStatus string

const (
	NodeStatusPending   NodeExecutionStatus = "pending"
	NodeStatusRunning   NodeExecutionStatus = "running"
	NodeStatusCompleted NodeExecutionStatus = "completed"
	NodeStatusFailed    NodeExecutionStatus = "failed"
	NodeStatusSkipped   NodeExecutionStatus = "skipped"
)

// NodeExecution records one attempt group of a node within an execution.
// Iteration is non-zero for nodes run inside a loop subgraph.
type NodeExecution struct {
	NodeID      string              `json:"node_id"`
	Status      NodeExecutionStatus `json:"status"`
	Inputs      map[string]any      `json:"inputs,omitempty"`
	Outputs     map[string]any      `json:"outputs,omitempty"`
	Error       string              `json:"error,omitempty"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Attempts    int                 `json:"attempts"`
	Iteration   int                 `json:"iteration,omitempty"`
}

// LogLevel grades log entries recorded during an execution.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Well-known log entry codes.
const (
	LogCodeSkippedOverlap  = "SkippedOverlap"
	LogCodeTriggerMismatch = "TriggerMismatch"
	LogCodeTimeout         = "Timeout"
)

// LogEntry is one structured line in an execution's append-ordered log.
type LogEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     LogLevel       `json:"level"`
	Code      string         `json:"code,omitempty"`
	NodeID    string         `json:"node_id,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Execution is one run of a WorkflowDefinition in response to a matched
// trigger. It is mutated only by the engine goroutine driving it and becomes
// immutable once its status is terminal.
type Execution struct {
	ID             string          `json:"id"`
	DefinitionID   string          `json:"definition_id"`
	Status         ExecutionStatus `json:"status"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	TriggerPayload map[string]any  `json:"trigger_payload,omitempty"`
	NodeExecutions []NodeExecution `json:"node_executions"`
	Logs           []LogEntry      `json:"logs"`
	Error          string          `json:"error,omitempty"`
}

// ExecutionSummary is the listing projection of an execution, without the
// per-node records and log body.
type ExecutionSummary struct {
	ID           string          `json:"id"`
	DefinitionID string          `json:"definition_id"`
	Status       ExecutionStatus `json:"status"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	NodeCount    int             `json:"node_count"`
	Error        string          `json:"error,omitempty"`
}

// Summary projects the execution into its listing form.
func (e *Execution) Summary() ExecutionSummary {
	return ExecutionSummary{
		ID:           e.ID,
		DefinitionID: e.DefinitionID,
		Status:       e.Status,
		StartedAt:    e.StartedAt,
		CompletedAt:  e.CompletedAt,
		NodeCount:    len(e.NodeExecutions),
		Error:        e.Error,
	}
}
