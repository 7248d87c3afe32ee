// Package defaults registers the built-in action adapter factories.
package defaults

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/campusflow/campusflow/pkg/actions"
	"github.com/campusflow/campusflow/pkg/actions/database"
	"github.com/campusflow/campusflow/pkg/actions/email"
	"github.com/campusflow/campusflow/pkg/actions/integration"
	"github.com/campusflow/campusflow/pkg/actions/notification"
	"github.com/campusflow/campusflow/pkg/actions/sms"
	"github.com/campusflow/campusflow/pkg/actions/webhook"
)

// Backends holds the external collaborators the built-in adapters talk to.
// Nil fields fall back to log-only development backends; a nil DB leaves the
// database adapter registered but failing at execution time.
type Backends struct {
	EmailTransport       email.Transport
	SMSGateway           sms.Gateway
	NotificationPusher   notification.Pusher
	HTTPClient           *http.Client
	DB                   *sql.DB
	IntegrationEndpoints map[string]string
}

// Register wires every built-in adapter factory into the registry.
func Register(registry *actions.Registry, logger *slog.Logger, backends Backends) {
	transport := backends.EmailTransport
	if transport == nil {
		transport = &email.LogTransport{Logger: logger}
	}

	gateway := backends.SMSGateway
	if gateway == nil {
		gateway = &sms.LogGateway{Logger: logger}
	}

	pusher := backends.NotificationPusher
	if pusher == nil {
		pusher = &notification.LogPusher{Logger: logger}
	}

	client := backends.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	registry.Register(email.NewFactory(transport))
	registry.Register(sms.NewFactory(gateway))
	registry.Register(notification.NewFactory(pusher))
	registry.Register(webhook.NewFactory(client))
	registry.Register(database.NewFactory(backends.DB))
	registry.Register(integration.NewFactory(backends.IntegrationEndpoints, client))
}
