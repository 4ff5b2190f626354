package paymentgateway

import (
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
)

const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

// InitializeRequest amounts are in major units; the client converts them
// to minor units on the wire.
type InitializeRequest struct {
	Email       string
	Amount      decimal.Decimal
	Currency    string
	Reference   string
	CallbackURL string
	Metadata    map[string]interface{}
	Channels    []string
}

func (r *InitializeRequest) Validate() error {
	if r.Email == "" {
		return errors.New("email is required")
	}
	if !r.Amount.IsPositive() {
		return errors.New("amount must be greater than 0")
	}
	if r.Currency == "" {
		return errors.New("currency is required")
	}
	if r.Reference == "" {
		return errors.New("reference is required")
	}
	return nil
}

type InitializeResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
	Raw              json.RawMessage
}

// Verification is the gateway's authoritative view of a transaction.
// Amount is in major units.
type Verification struct {
	Reference       string
	Status          string
	Amount          decimal.Decimal
	Currency        string
	TransactionID   string
	GatewayResponse string
	Channel         string
	PaidAt          string
	Raw             json.RawMessage
}

type WebhookResult struct {
	IsValid bool
	Event   string
	Data    json.RawMessage
}

// ChargeData is the subset of a charge webhook's data object the
// reconciler reads.
type ChargeData struct {
	ID              json.Number `json:"id"`
	Reference       string      `json:"reference"`
	Status          string      `json:"status"`
	Amount          int64       `json:"amount"`
	Currency        string      `json:"currency"`
	GatewayResponse string      `json:"gateway_response"`
}

type Bank struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Code     string `json:"code"`
	Country  string `json:"country"`
	Currency string `json:"currency"`
	Type     string `json:"type"`
	Active   bool   `json:"active"`
}

type AccountResolution struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankID        int64  `json:"bank_id"`
}
