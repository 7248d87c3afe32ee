// Package validation implements the static checks a workflow definition must
// pass before it can be activated. All checks run and every problem is
// reported, so an author sees the full diagnostic list at once.
package validation

import (
	"fmt"

	"github.com/campusflow/campusflow/pkg/graph"
	"github.com/campusflow/campusflow/pkg/models"
)

// Validation error codes.
const (
	CodeNoTriggerNode   = "no_trigger_node"
	CodeCycle           = "cycle"
	CodeUnreachableNode = "unreachable_node"
	CodeUnknownNode     = "unknown_node"
	CodeUnknownPort     = "unknown_port"
	CodeTypeMismatch    = "type_mismatch"
	CodeBadTrigger      = "bad_trigger"
	CodeDuplicateNodeID = "duplicate_node_id"
	CodeBadConfig       = "bad_config"
	CodeMissingInput    = "missing_required_input"
)

// ValidationError describes one problem found in a definition.
type ValidationError struct {
	Code    string `json:"code"`
	NodeID  string `json:"node_id,omitempty"`
	EdgeID  string `json:"edge_id,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s (node %s): %s", e.Code, e.NodeID, e.Message)
	}

	if e.EdgeID != "" {
		return fmt.Sprintf("%s (edge %s): %s", e.Code, e.EdgeID, e.Message)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// SchemaProvider exposes per-action-type config schemas. The action registry
// implements it; validation stays decoupled from adapter construction.
type SchemaProvider interface {
	Schema(actionType string) (map[string]any, bool)
}

// Validator runs structural and config checks over definitions.
type Validator struct {
	schemas SchemaProvider
}

// New creates a validator. schemas may be nil, in which case adapter config
// checks are skipped.
func New(schemas SchemaProvider) *Validator {
	return &Validator{schemas: schemas}
}

// Validate checks a definition and returns every problem found. A definition
// with IsActive=true must produce an empty list before it is persisted.
func (v *Validator) Validate(def *models.WorkflowDefinition) []ValidationError {
	errs := make([]ValidationError, 0)

	errs = append(errs, v.checkTrigger(def)...)
	errs = append(errs, v.checkNodeIDs(def)...)

	g := graph.New(def)

	errs = append(errs, v.checkAcyclic(g)...)
	errs = append(errs, v.checkReachability(def, g)...)
	errs = append(errs, v.checkEdges(def, g)...)
	errs = append(errs, v.checkInputs(def, g)...)
	errs = append(errs, v.checkConfigs(def)...)

	return errs
}

// checkTrigger verifies the declared trigger and the presence of at least one
// trigger node in the graph.
func (v *Validator) checkTrigger(def *models.WorkflowDefinition) []ValidationError {
	var errs []ValidationError

	switch def.Trigger.Type {
	case models.TriggerTypeEvent:
		if def.Trigger.EventName == "" {
			errs = append(errs, ValidationError{
				Code:    CodeBadTrigger,
				Message: "event trigger requires an event name",
			})
		}
	case models.TriggerTypeSchedule:
		if def.Trigger.CronExpression == "" {
			errs = append(errs, ValidationError{
				Code:    CodeBadTrigger,
				Message: "schedule trigger requires a cron expression",
			})
		}
	case models.TriggerTypeManual:
		// No extra fields.
	default:
		errs = append(errs, ValidationError{
			Code:    CodeBadTrigger,
			Message: fmt.Sprintf("unknown trigger type %q", def.Trigger.Type),
		})
	}

	if len(def.TriggerNodes()) == 0 {
		errs = append(errs, ValidationError{
			Code:    CodeNoTriggerNode,
			Message: "workflow must contain at least one trigger node",
		})
	}

	return errs
}

func (v *Validator) checkNodeIDs(def *models.WorkflowDefinition) []ValidationError {
	var errs []ValidationError

	seen := make(map[string]bool, len(def.Nodes))

	for _, n := range def.Nodes {
		if seen[n.ID] {
			errs = append(errs, ValidationError{
				Code:    CodeDuplicateNodeID,
				NodeID:  n.ID,
				Message: "node id used more than once",
			})
		}

		seen[n.ID] = true
	}

	return errs
}

func (v *Validator) checkAcyclic(g *graph.Graph) []ValidationError {
	if at, found := g.HasCycle(); found {
		return []ValidationError{{
			Code:    CodeCycle,
			NodeID:  at,
			Message: "graph contains a cycle; bounded repetition must use a loop node",
		}}
	}

	return nil
}

func (v *Validator) checkReachability(def *models.WorkflowDefinition, g *graph.Graph) []ValidationError {
	var errs []ValidationError

	reachable := g.ReachableFromTriggers()

	for _, n := range def.Nodes {
		if n.IsTriggerNode() {
			continue
		}

		if !reachable[n.ID] {
			errs = append(errs, ValidationError{
				Code:    CodeUnreachableNode,
				NodeID:  n.ID,
				Message: "node is not reachable from any trigger node",
			})
		}
	}

	return errs
}

// checkInputs verifies every required input port has a source: an incoming
// edge onto the port or a design-time literal in the node config. A required
// input without either would starve the node at run time.
func (v *Validator) checkInputs(def *models.WorkflowDefinition, g *graph.Graph) []ValidationError {
	var errs []ValidationError

	for _, n := range def.Nodes {
		for _, port := range n.Inputs {
			if !port.Required {
				continue
			}

			if _, ok := n.Config[port.Key]; ok {
				continue
			}

			wired := false

			for _, e := range g.IncomingEdges(n.ID) {
				if e.TargetInputKey == port.Key {
					wired = true

					break
				}
			}

			if !wired {
				errs = append(errs, ValidationError{
					Code:    CodeMissingInput,
					NodeID:  n.ID,
					Message: fmt.Sprintf("required input %q has no incoming edge or config value", port.Key),
				})
			}
		}
	}

	return errs
}

// checkEdges verifies that every edge references existing node ids and
// existing, type-compatible ports.
func (v *Validator) checkEdges(def *models.WorkflowDefinition, g *graph.Graph) []ValidationError {
	var errs []ValidationError

	for _, e := range def.Edges {
		source, sourceOK := g.Node(e.SourceNodeID)
		if !sourceOK {
			errs = append(errs, ValidationError{
				Code:    CodeUnknownNode,
				EdgeID:  e.ID,
				Message: fmt.Sprintf("edge source node %q does not exist", e.SourceNodeID),
			})
		}

		target, targetOK := g.Node(e.TargetNodeID)
		if !targetOK {
			errs = append(errs, ValidationError{
				Code:    CodeUnknownNode,
				EdgeID:  e.ID,
				Message: fmt.Sprintf("edge target node %q does not exist", e.TargetNodeID),
			})
		}

		if !sourceOK || !targetOK {
			continue
		}

		out, outOK := source.OutputSpec(e.SourceOutputKey)
		if !outOK {
			errs = append(errs, ValidationError{
				Code:    CodeUnknownPort,
				EdgeID:  e.ID,
				NodeID:  source.ID,
				Message: fmt.Sprintf("node %q has no output %q", source.ID, e.SourceOutputKey),
			})
		}

		in, inOK := target.InputSpec(e.TargetInputKey)
		if !inOK {
			errs = append(errs, ValidationError{
				Code:    CodeUnknownPort,
				EdgeID:  e.ID,
				NodeID:  target.ID,
				Message: fmt.Sprintf("node %q has no input %q", target.ID, e.TargetInputKey),
			})
		}

		if outOK && inOK && !out.ValueType.Compatible(in.ValueType) {
			errs = append(errs, ValidationError{
				Code:   CodeTypeMismatch,
				EdgeID: e.ID,
				Message: fmt.Sprintf("output %s.%s (%s) is not compatible with input %s.%s (%s)",
					source.ID, out.Key, out.ValueType, target.ID, in.Key, in.ValueType),
			})
		}
	}

	return errs
}
