// Package web provides the HTTP surface: trigger ingress, definition CRUD,
// manual runs and execution queries.
package web

import (
	"errors"

	"github.com/campusflow/campusflow/pkg/models"
)

// CreateWorkflowRequest is the request body for creating a definition. The
// graph arrives either as explicit nodes and edges, or as a flat ordered
// steps list which is converted into a linear chain behind the trigger node.
type CreateWorkflowRequest struct {
	Name        string          `json:"name"        validate:"required,min=3"`
	Description string          `json:"description"`
	Owner       string          `json:"owner"`
	Trigger     models.Trigger  `json:"trigger"     validate:"required"`
	Nodes       []*models.Node  `json:"nodes,omitempty"`
	Edges       []*models.Edge  `json:"edges,omitempty"`
	Steps       []models.Step   `json:"steps,omitempty"`
	Settings    models.Settings `json:"settings"`
	IsActive    bool            `json:"is_active"`
}

// Definition converts the request into a domain definition.
func (r CreateWorkflowRequest) Definition() (*models.WorkflowDefinition, error) {
	nodes := r.Nodes
	edges := r.Edges

	if len(nodes) == 0 && len(r.Steps) > 0 {
		nodes, edges = models.GraphFromSteps(r.Steps)
	}

	if len(nodes) == 0 {
		return nil, errors.New("definition requires nodes or steps")
	}

	return &models.WorkflowDefinition{
		Name:        r.Name,
		Description: r.Description,
		Owner:       r.Owner,
		Trigger:     r.Trigger,
		Nodes:       nodes,
		Edges:       edges,
		Settings:    r.Settings,
		IsActive:    r.IsActive,
	}, nil
}

// UpdateWorkflowRequest is the request body for updating a definition.
// All fields are optional to support partial updates; sending nodes, edges
// or steps replaces the whole graph.
type UpdateWorkflowRequest struct {
	Name        *string          `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string          `json:"description,omitempty"`
	Trigger     *models.Trigger  `json:"trigger,omitempty"`
	Nodes       []*models.Node   `json:"nodes,omitempty"`
	Edges       []*models.Edge   `json:"edges,omitempty"`
	Steps       []models.Step    `json:"steps,omitempty"`
	Settings    *models.Settings `json:"settings,omitempty"`
	IsActive    *bool            `json:"is_active,omitempty"`
}

// Apply merges the partial update onto an existing definition.
func (r UpdateWorkflowRequest) Apply(def *models.WorkflowDefinition) {
	if r.Name != nil {
		def.Name = *r.Name
	}

	if r.Description != nil {
		def.Description = *r.Description
	}

	if r.Trigger != nil {
		def.Trigger = *r.Trigger
	}

	if len(r.Nodes) > 0 || len(r.Edges) > 0 {
		def.Nodes = r.Nodes
		def.Edges = r.Edges
	} else if len(r.Steps) > 0 {
		def.Nodes, def.Edges = models.GraphFromSteps(r.Steps)
	}

	if r.Settings != nil {
		def.Settings = *r.Settings
	}

	if r.IsActive != nil {
		def.IsActive = *r.IsActive
	}
}

// RunWorkflowRequest is the request body for a manual run.
type RunWorkflowRequest struct {
	Payload map[string]any `json:"payload,omitempty"`
}

// TriggerResponse reports the executions started for an inbound event.
type TriggerResponse struct {
	EventName  string   `json:"event_name"`
	Executions []string `json:"executions"`
}

// RunResponse reports the execution started by a manual run.
type RunResponse struct {
	ExecutionID string `json:"execution_id"`
}
