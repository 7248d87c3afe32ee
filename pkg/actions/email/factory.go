package email

import "github.com/campusflow/campusflow/pkg/actions"

type Factory struct {
	transport Transport
}

func NewFactory(transport Transport) *Factory {
	return &Factory{transport: transport}
}

func (f *Factory) Create(config map[string]any) (actions.Adapter, error) {
	return NewEmailAction(config, f.transport)
}

func (f *Factory) ID() string {
	return "send_email"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to":              map[string]any{"type": "string"},
			"subject":         map[string]any{"type": "string"},
			"body":            map[string]any{"type": "string"},
			"timeout_seconds": map[string]any{"type": "number"},
		},
	}
}
