package models

// NodeCategory classifies a node's role in the graph.
type NodeCategory string

const (
	CategoryTrigger NodeCategory = "trigger" // Entry point fed by the matched trigger payload
	CategoryAction  NodeCategory = "action"  // Delegates to an action adapter (email, sms, ...)
	CategoryAI      NodeCategory = "ai"      // AI-backed action, invoked through the integration adapter
	CategoryLogic   NodeCategory = "logic"   // Control flow (if_condition)
	CategoryUtility NodeCategory = "utility" // Helpers (loop, delay, transform)
)

// Built-in node types with engine-level semantics.
const (
	NodeTypeIfCondition = "if_condition"
	NodeTypeLoop        = "loop"
)

// Output keys produced by an if_condition node. Exactly one is populated
// per execution of the node.
const (
	OutputKeyTrue  = "true"
	OutputKeyFalse = "false"
)

// ValueType is the declared type of a port. Edges may only connect ports
// whose types match exactly, or where either side is "any".
type ValueType string

const (
	ValueTypeText    ValueType = "text"
	ValueTypeNumber  ValueType = "number"
	ValueTypeBoolean ValueType = "boolean"
	ValueTypeSelect  ValueType = "select"
	ValueTypeJSON    ValueType = "json"
	ValueTypeAny     ValueType = "any"
)

// Compatible reports whether a value of type v may flow into a port of type other.
func (v ValueType) Compatible(other ValueType) bool {
	return v == other || v == ValueTypeAny || other == ValueTypeAny
}

// PortSpec declares a named, typed input or output of a node.
type PortSpec struct {
	Key       string    `json:"key"        validate:"required"`
	ValueType ValueType `json:"value_type" validate:"required"`
	Required  bool      `json:"required"`
}

// Node is one unit of work in a workflow graph. Config holds design-time
// literal values; run-time values arrive along edges into declared inputs.
type Node struct {
	ID       string         `json:"id"       validate:"required"`
	Name     string         `json:"name"     validate:"required,min=1"`
	Category NodeCategory   `json:"category" validate:"required,oneof=trigger action ai logic utility"`
	Type     string         `json:"type"     validate:"required"`
	Config   map[string]any `json:"config,omitempty"`
	Inputs   []PortSpec     `json:"inputs,omitempty"`
	Outputs  []PortSpec     `json:"outputs,omitempty"`
}

// InputSpec returns the declared input port with the given key.
func (n *Node) InputSpec(key string) (PortSpec, bool) {
	for _, p := range n.Inputs {
		if p.Key == key {
			return p, true
		}
	}

	return PortSpec{}, false
}

// OutputSpec returns the declared output port with the given key.
func (n *Node) OutputSpec(key string) (PortSpec, bool) {
	for _, p := range n.Outputs {
		if p.Key == key {
			return p, true
		}
	}

	return PortSpec{}, false
}

// IsTriggerNode reports whether the node is a graph entry point.
func (n *Node) IsTriggerNode() bool {
	return n.Category == CategoryTrigger
}
