// Package sms provides the SMS action adapter backed by an injected gateway.
package sms

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// Gateway delivers one text message and returns a provider message id.
type Gateway interface {
	Send(ctx context.Context, to, message string) (string, error)
}

// SMSAction sends one text message per invocation.
type SMSAction struct {
	To      string
	Message string
	gateway Gateway
}

func NewSMSAction(config map[string]any, gateway Gateway) (*SMSAction, error) {
	to, _ := config["to"].(string)
	message, _ := config["message"].(string)

	return &SMSAction{
		To:      to,
		Message: message,
		gateway: gateway,
	}, nil
}

func (a *SMSAction) Execute(ctx context.Context, inputs map[string]any, logger *slog.Logger) (map[string]any, error) {
	to := a.To
	if v, ok := inputs["to"].(string); ok && v != "" {
		to = v
	}

	message := a.Message
	if v, ok := inputs["message"].(string); ok && v != "" {
		message = v
	}

	if to == "" {
		return nil, errors.New("sms action requires a recipient phone number")
	}

	logger.InfoContext(ctx, "Sending SMS", "to", to)

	messageID, err := a.gateway.Send(ctx, to, message)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"message_id": messageID,
		"to":         to,
		"status":     "sent",
	}, nil
}

// LogGateway is the development gateway: it records the send instead of
// talking to an SMS provider.
type LogGateway struct {
	Logger *slog.Logger
}

func (g *LogGateway) Send(ctx context.Context, to, message string) (string, error) {
	g.Logger.InfoContext(ctx, "SMS delivered to log gateway", "to", to, "length", len(message))

	return "sms-" + uuid.New().String()[:8], nil
}
