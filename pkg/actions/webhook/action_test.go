package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestWebhookAction_PostsInputs(t *testing.T) {
	var (
		gotBody   map[string]any
		gotHeader string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"received": true}`))
	}))
	defer server.Close()

	action, err := NewWebhookAction(map[string]any{
		"url":     server.URL,
		"headers": map[string]any{"X-Token": "secret"},
	}, server.Client())
	require.NoError(t, err)

	outputs, err := action.Execute(context.Background(), map[string]any{"student_id": "s-1"}, logger())
	require.NoError(t, err)

	assert.Equal(t, "s-1", gotBody["student_id"])
	assert.Equal(t, "secret", gotHeader)
	assert.Equal(t, http.StatusOK, outputs["status_code"])
	assert.Equal(t, map[string]any{"received": true}, outputs["body"])
}

func TestWebhookAction_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	action, err := NewWebhookAction(map[string]any{"url": server.URL}, server.Client())
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), nil, logger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNewWebhookAction_RequiresURL(t *testing.T) {
	_, err := NewWebhookAction(map[string]any{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url")
}

func TestNewWebhookAction_NormalizesMethod(t *testing.T) {
	action, err := NewWebhookAction(map[string]any{"url": "http://example.com", "method": "put"}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, action.Method)
}
