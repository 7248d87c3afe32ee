// Package eventbus provides publish/subscribe for execution lifecycle events.
package eventbus

import (
	"context"

	"github.com/campusflow/campusflow/pkg/events"
)

// EventHandler processes one decoded lifecycle event.
type EventHandler func(ctx context.Context, event any) error

// EventBus publishes and routes lifecycle events. Implementations wrap a
// watermill publisher/subscriber pair.
type EventBus interface {
	Publish(ctx context.Context, key string, event events.Event) error
	Subscribe(ctx context.Context) error
	Handle(eventType events.EventType, handler EventHandler) error
	GenerateID() string
	Close() error
}
