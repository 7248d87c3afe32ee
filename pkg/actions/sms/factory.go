package sms

import "github.com/campusflow/campusflow/pkg/actions"

type Factory struct {
	gateway Gateway
}

func NewFactory(gateway Gateway) *Factory {
	return &Factory{gateway: gateway}
}

func (f *Factory) Create(config map[string]any) (actions.Adapter, error) {
	return NewSMSAction(config, f.gateway)
}

func (f *Factory) ID() string {
	return "send_sms"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to":              map[string]any{"type": "string"},
			"message":         map[string]any{"type": "string"},
			"timeout_seconds": map[string]any{"type": "number"},
		},
	}
}
