package paymentgateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net"
	"strings"

	types "github.com/frahmantamala/payment-reconciler/internal/core/datamodel/paymentgateway"
)

// WebhookAuthenticator checks that a delivery was produced by the gateway:
// an optional source address allow-list, then an HMAC-SHA512 signature over
// the exact raw body.
type WebhookAuthenticator struct {
	secret  []byte
	allowed map[string]struct{}
	logger  *slog.Logger
}

func NewWebhookAuthenticator(secret string, allowedIPs []string, logger *slog.Logger) *WebhookAuthenticator {
	allowed := make(map[string]struct{}, len(allowedIPs))
	for _, ip := range allowedIPs {
		if parsed := net.ParseIP(strings.TrimSpace(ip)); parsed != nil {
			allowed[parsed.String()] = struct{}{}
		}
	}
	return &WebhookAuthenticator{
		secret:  []byte(secret),
		allowed: allowed,
		logger:  logger,
	}
}

// Sign returns the lowercase hex HMAC-SHA512 of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate never returns an error; every failure is an invalid result.
// sourceIP is only checked when non-empty and an allow-list is configured.
func (a *WebhookAuthenticator) Authenticate(body []byte, signature, sourceIP string) (result types.WebhookResult) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("webhook authentication panicked", "panic", r)
			result = types.WebhookResult{}
		}
	}()

	if sourceIP != "" && len(a.allowed) > 0 && !a.isAllowed(sourceIP) {
		a.logger.Warn("webhook from untrusted source", "source_ip", sourceIP)
		return types.WebhookResult{}
	}

	if len(a.secret) == 0 {
		a.logger.Error("webhook secret is not configured")
		return types.WebhookResult{}
	}

	expected, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(signature)))
	if err != nil || len(expected) != sha512.Size {
		a.logger.Warn("webhook signature missing or malformed")
		return types.WebhookResult{}
	}

	mac := hmac.New(sha512.New, a.secret)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), expected) {
		a.logger.Warn("webhook signature mismatch")
		return types.WebhookResult{}
	}

	var envelope struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		a.logger.Warn("webhook body is not valid JSON", "error", err)
		return types.WebhookResult{}
	}

	return types.WebhookResult{
		IsValid: true,
		Event:   envelope.Event,
		Data:    envelope.Data,
	}
}

func (a *WebhookAuthenticator) isAllowed(sourceIP string) bool {
	host := strings.TrimSpace(sourceIP)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	parsed := net.ParseIP(host)
	if parsed == nil {
		return false
	}
	_, ok := a.allowed[parsed.String()]
	return ok
}
