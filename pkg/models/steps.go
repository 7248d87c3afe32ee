package models

import "fmt"

// Step is the flat "ordered action list" form of a workflow: a trigger plus a
// sequence of actions executed in order. It is accepted at the API boundary
// and converted to a linear graph before validation, so the engine only ever
// sees one representation.
type Step struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"   validate:"required,min=1"`
	Type   string         `json:"type"   validate:"required"`
	Config map[string]any `json:"config,omitempty"`
}

// GraphFromSteps expands an ordered step list into nodes and edges forming a
// linear chain: a single trigger node followed by one action node per step,
// each step's sole predecessor being the previous one.
func GraphFromSteps(steps []Step) ([]*Node, []*Edge) {
	nodes := make([]*Node, 0, len(steps)+1)
	edges := make([]*Edge, 0, len(steps))

	trigger := &Node{
		ID:       "trigger",
		Name:     "Trigger",
		Category: CategoryTrigger,
		Type:     "trigger",
		Outputs:  []PortSpec{{Key: "payload", ValueType: ValueTypeJSON}},
	}
	nodes = append(nodes, trigger)

	prevID := trigger.ID
	prevKey := "payload"

	for i, step := range steps {
		id := step.ID
		if id == "" {
			id = fmt.Sprintf("step-%d", i+1)
		}

		node := &Node{
			ID:       id,
			Name:     step.Name,
			Category: CategoryAction,
			Type:     step.Type,
			Config:   step.Config,
			Inputs:   []PortSpec{{Key: "main", ValueType: ValueTypeAny}},
			Outputs:  []PortSpec{{Key: "main", ValueType: ValueTypeAny}},
		}
		nodes = append(nodes, node)

		edges = append(edges, &Edge{
			ID:              fmt.Sprintf("edge-%d", i+1),
			SourceNodeID:    prevID,
			SourceOutputKey: prevKey,
			TargetNodeID:    id,
			TargetInputKey:  "main",
		})

		prevID = id
		prevKey = "main"
	}

	return nodes, edges
}
