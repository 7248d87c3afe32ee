package models

// Edge is a directed data/control dependency between two nodes' named ports.
// Edges are the only way data and control flow between nodes.
type Edge struct {
	ID              string `json:"id"`
	SourceNodeID    string `json:"source_node_id"    validate:"required"`
	SourceOutputKey string `json:"source_output_key" validate:"required"`
	TargetNodeID    string `json:"target_node_id"    validate:"required"`
	TargetInputKey  string `json:"target_input_key"  validate:"required"`
}
