package stripe

import (
	"errors"
	"net/http"
	"strings"
	"time"

	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/fx"

	"github.com/smallbiznis/coursepay/internal/config"
)

// ReconcileName tags the gateway used by webhook-driven work.
const ReconcileName = "reconcile"

var ErrMissingSecretKey = errors.New("stripe: secret key is required")

// Clients holds the two API clients built at startup. Both share the
// bounded HTTP timeout; only the client-facing one retries. Webhook
// handlers rely on the gateway redelivering the event instead.
type Clients struct {
	fx.Out

	API       *client.API
	Reconcile *client.API `name:"reconcile"`
}

func NewClients(cfg config.Config) (Clients, error) {
	key := strings.TrimSpace(cfg.Stripe.SecretKey)
	if key == "" {
		return Clients{}, ErrMissingSecretKey
	}
	return Clients{
		API:       client.New(key, stripego.NewBackendsWithConfig(clientBackendConfig(cfg))),
		Reconcile: client.New(key, stripego.NewBackendsWithConfig(reconcileBackendConfig(cfg))),
	}, nil
}

func clientBackendConfig(cfg config.Config) *stripego.BackendConfig {
	retries := cfg.Stripe.MaxNetworkRetries
	if retries < 0 {
		retries = 0
	}
	return backendConfig(cfg, retries)
}

func reconcileBackendConfig(cfg config.Config) *stripego.BackendConfig {
	return backendConfig(cfg, 0)
}

func backendConfig(cfg config.Config, retries int64) *stripego.BackendConfig {
	timeout := cfg.Stripe.APITimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &stripego.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripego.Int64(retries),
	}
}
