// Package notification provides the push-notification action adapter.
package notification

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// Pusher delivers one push notification to a user's registered devices.
type Pusher interface {
	Push(ctx context.Context, userID, title, message string) (string, error)
}

// NotificationAction pushes one notification per invocation.
type NotificationAction struct {
	UserID  string
	Title   string
	Message string
	pusher  Pusher
}

func NewNotificationAction(config map[string]any, pusher Pusher) (*NotificationAction, error) {
	userID, _ := config["user_id"].(string)
	title, _ := config["title"].(string)
	message, _ := config["message"].(string)

	return &NotificationAction{
		UserID:  userID,
		Title:   title,
		Message: message,
		pusher:  pusher,
	}, nil
}

func (a *NotificationAction) Execute(ctx context.Context, inputs map[string]any, logger *slog.Logger) (map[string]any, error) {
	userID := a.UserID
	if v, ok := inputs["user_id"].(string); ok && v != "" {
		userID = v
	}

	title := a.Title
	if v, ok := inputs["title"].(string); ok && v != "" {
		title = v
	}

	message := a.Message
	if v, ok := inputs["message"].(string); ok && v != "" {
		message = v
	}

	if userID == "" {
		return nil, errors.New("notification action requires a user id")
	}

	logger.InfoContext(ctx, "Pushing notification", "user_id", userID, "title", title)

	notificationID, err := a.pusher.Push(ctx, userID, title, message)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"notification_id": notificationID,
		"user_id":         userID,
		"status":          "delivered",
	}, nil
}

// LogPusher is the development pusher: it records the push instead of
// talking to a push service.
type LogPusher struct {
	Logger *slog.Logger
}

func (p *LogPusher) Push(ctx context.Context, userID, title, _ string) (string, error) {
	p.Logger.InfoContext(ctx, "Notification delivered to log pusher", "user_id", userID, "title", title)

	return "ntf-" + uuid.New().String()[:8], nil
}
