package paymentgateway

import (
	"log/slog"

	types "github.com/frahmantamala/payment-reconciler/internal/core/datamodel/paymentgateway"
)

const ProviderPaystack = "paystack"

// Paystack bundles the REST client and webhook authenticator behind the
// single gateway capability the reconciler depends on.
type Paystack struct {
	*Client
	webhooks *WebhookAuthenticator
}

type PaystackConfig struct {
	Client         Config
	WebhookSecret  string
	WebhookSources []string
}

func NewPaystack(config PaystackConfig, logger *slog.Logger) *Paystack {
	secret := config.WebhookSecret
	if secret == "" {
		secret = config.Client.SecretKey
	}
	return &Paystack{
		Client:   NewClient(config.Client, logger),
		webhooks: NewWebhookAuthenticator(secret, config.WebhookSources, logger),
	}
}

func (p *Paystack) Provider() string {
	return ProviderPaystack
}

func (p *Paystack) AuthenticateWebhook(body []byte, signature, sourceIP string) types.WebhookResult {
	return p.webhooks.Authenticate(body, signature, sourceIP)
}
