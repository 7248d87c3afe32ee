// Package email provides the email action adapter. Delivery is delegated to
// an injected transport; the adapter only shapes and validates the send.
package email

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// Message is one outbound email handed to the transport.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Transport delivers a message and returns a provider message id.
type Transport interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// EmailAction sends one email per invocation.
type EmailAction struct {
	To        string
	Subject   string
	Body      string
	transport Transport
}

func NewEmailAction(config map[string]any, transport Transport) (*EmailAction, error) {
	to, _ := config["to"].(string)
	subject, _ := config["subject"].(string)
	body, _ := config["body"].(string)

	return &EmailAction{
		To:        to,
		Subject:   subject,
		Body:      body,
		transport: transport,
	}, nil
}

func (a *EmailAction) Execute(ctx context.Context, inputs map[string]any, logger *slog.Logger) (map[string]any, error) {
	msg := Message{
		To:      firstNonEmpty(stringInput(inputs, "to"), a.To),
		Subject: firstNonEmpty(stringInput(inputs, "subject"), a.Subject),
		Body:    firstNonEmpty(stringInput(inputs, "body"), a.Body),
	}

	if msg.To == "" {
		return nil, errors.New("email action requires a recipient")
	}

	logger.InfoContext(ctx, "Sending email", "to", msg.To, "subject", msg.Subject)

	messageID, err := a.transport.Send(ctx, msg)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"message_id": messageID,
		"to":         msg.To,
		"status":     "sent",
	}, nil
}

func stringInput(inputs map[string]any, key string) string {
	v, _ := inputs[key].(string)

	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

// LogTransport is the development transport: it records the send and
// fabricates a message id instead of talking to a mail server.
type LogTransport struct {
	Logger *slog.Logger
}

func (t *LogTransport) Send(ctx context.Context, msg Message) (string, error) {
	t.Logger.InfoContext(ctx, "Email delivered to log transport", "to", msg.To, "subject", msg.Subject)

	return "email-" + uuid.New().String()[:8], nil
}
