package webhook

import (
	"net/http"

	"github.com/campusflow/campusflow/pkg/actions"
)

type Factory struct {
	client *http.Client
}

func NewFactory(client *http.Client) *Factory {
	return &Factory{client: client}
}

func (f *Factory) Create(config map[string]any) (actions.Adapter, error) {
	return NewWebhookAction(config, f.client)
}

func (f *Factory) ID() string {
	return "webhook"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":             map[string]any{"type": "string"},
			"method":          map[string]any{"type": "string"},
			"headers":         map[string]any{"type": "object"},
			"timeout_seconds": map[string]any{"type": "number"},
		},
		"required": []any{"url"},
	}
}
