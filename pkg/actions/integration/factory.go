package integration

import (
	"net/http"

	"github.com/campusflow/campusflow/pkg/actions"
)

type Factory struct {
	endpoints map[string]string
	client    *http.Client
}

// NewFactory creates the integration factory. endpoints maps integration
// names (crm, calendar, payment, ...) to their base URLs.
func NewFactory(endpoints map[string]string, client *http.Client) *Factory {
	if endpoints == nil {
		endpoints = make(map[string]string)
	}

	return &Factory{endpoints: endpoints, client: client}
}

func (f *Factory) Create(config map[string]any) (actions.Adapter, error) {
	return NewIntegrationAction(config, f.endpoints, f.client)
}

func (f *Factory) ID() string {
	return "integration"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"integration":     map[string]any{"type": "string"},
			"operation":       map[string]any{"type": "string"},
			"endpoint":        map[string]any{"type": "string"},
			"api_key":         map[string]any{"type": "string"},
			"timeout_seconds": map[string]any{"type": "number"},
		},
		"required": []any{"integration", "operation"},
	}
}
