// Package integration provides the named third-party integration adapter
// (CRM, calendar, payment, ...). Each integration is an HTTP endpoint known
// to the factory; the adapter POSTs an operation envelope to it.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// IntegrationAction calls one operation on one named integration.
type IntegrationAction struct {
	Integration string
	Operation   string
	endpoint    string
	apiKey      string
	client      *http.Client
}

func NewIntegrationAction(config map[string]any, endpoints map[string]string, client *http.Client) (*IntegrationAction, error) {
	name, _ := config["integration"].(string)
	if name == "" {
		return nil, errors.New("integration action requires an integration name")
	}

	operation, _ := config["operation"].(string)
	if operation == "" {
		return nil, errors.New("integration action requires an operation")
	}

	endpoint := endpoints[name]
	if override, ok := config["endpoint"].(string); ok && override != "" {
		endpoint = override
	}

	if endpoint == "" {
		return nil, fmt.Errorf("integration %q has no configured endpoint", name)
	}

	apiKey, _ := config["api_key"].(string)

	if client == nil {
		client = http.DefaultClient
	}

	return &IntegrationAction{
		Integration: name,
		Operation:   operation,
		endpoint:    endpoint,
		apiKey:      apiKey,
		client:      client,
	}, nil
}

func (a *IntegrationAction) Execute(ctx context.Context, inputs map[string]any, logger *slog.Logger) (map[string]any, error) {
	envelope := map[string]any{
		"operation": a.Operation,
		"data":      inputs,
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal integration payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create integration request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	logger.InfoContext(ctx, "Calling integration", "integration", a.Integration, "operation", a.Operation)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("integration %s call failed: %w", a.Integration, err)
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			logger.ErrorContext(ctx, "failed to close integration response body", "error", err)
		}
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read integration response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("integration %s returned status %d", a.Integration, resp.StatusCode)
	}

	var body any
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		body = string(bodyBytes)
	}

	return map[string]any{
		"integration": a.Integration,
		"operation":   a.Operation,
		"result":      body,
	}, nil
}
