package notification

import "github.com/campusflow/campusflow/pkg/actions"

type Factory struct {
	pusher Pusher
}

func NewFactory(pusher Pusher) *Factory {
	return &Factory{pusher: pusher}
}

func (f *Factory) Create(config map[string]any) (actions.Adapter, error) {
	return NewNotificationAction(config, f.pusher)
}

func (f *Factory) ID() string {
	return "send_notification"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id":         map[string]any{"type": "string"},
			"title":           map[string]any{"type": "string"},
			"message":         map[string]any{"type": "string"},
			"timeout_seconds": map[string]any{"type": "number"},
		},
	}
}
