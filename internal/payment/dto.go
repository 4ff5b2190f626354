package payment

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	errors "github.com/frahmantamala/payment-reconciler/internal"
	"github.com/frahmantamala/payment-reconciler/internal/core/common/validation"
	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/payment"
	"github.com/shopspring/decimal"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
	// MaxPage keeps (page-1)*limit far from int overflow.
	MaxPage = 1_000_000
)

var minAmount = decimal.New(1, -2)

type InitiatePaymentRequest struct {
	Amount          decimal.Decimal        `json:"amount"`
	Currency        string                 `json:"currency"`
	PaymentMethodID string                 `json:"payment_method_id"`
	Description     *string                `json:"description,omitempty"`
	CustomerEmail   string                 `json:"customer_email"`
	CustomerName    *string                `json:"customer_name,omitempty"`
	CustomerPhone   *string                `json:"customer_phone,omitempty"`
	CallbackURL     string                 `json:"callback_url,omitempty"`
	Channels        []string               `json:"channels,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// Normalize applies defaults before validation.
func (r *InitiatePaymentRequest) Normalize() {
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	if r.Currency == "" {
		r.Currency = payment.DefaultCurrency
	}
	r.CustomerEmail = strings.TrimSpace(r.CustomerEmail)
}

func (r *InitiatePaymentRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("amount", r.Amount).
		Required().
		MinDecimal(minAmount, errors.ErrCodeInvalidAmount).
		MaxDecimalPlaces(2, errors.ErrCodeInvalidAmount)
	validator.Field("currency", r.Currency).OneOf(payment.SupportedCurrencies, errors.ErrCodeInvalidCurrency)
	validator.Field("payment_method_id", r.PaymentMethodID).Required().UUID()
	validator.Field("customer_email", r.CustomerEmail).Required().Email()
	validator.Field("description", r.Description).MaxLength(500)
	validator.Field("customer_name", r.CustomerName).MaxLength(255)
	validator.Field("customer_phone", r.CustomerPhone).MaxLength(20)
	validator.Field("callback_url", r.CallbackURL).URL()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type InitiateResult struct {
	Payment          *payment.Payment
	AuthorizationURL string
	AccessCode       string
}

type InitiatePaymentResponse struct {
	Payment          PaymentResponse `json:"payment"`
	AuthorizationURL string          `json:"authorization_url"`
	AccessCode       string          `json:"access_code"`
	Reference        string          `json:"reference"`
}

// CallbackRequest is what the checkout redirect posts back; Paystack sends
// both reference and trxref with the same value.
type CallbackRequest struct {
	Reference string `json:"reference"`
	TrxRef    string `json:"trxref"`
	Status    string `json:"status,omitempty"`
}

func (r *CallbackRequest) ResolvedReference() string {
	if ref := strings.TrimSpace(r.Reference); ref != "" {
		return ref
	}
	return strings.TrimSpace(r.TrxRef)
}

func (r *CallbackRequest) Validate() error {
	validator := validation.NewValidator()
	validator.Field("reference", r.ResolvedReference()).Required().MaxLength(100)
	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// WebhookDelivery is an unparsed gateway webhook as received over HTTP.
type WebhookDelivery struct {
	Body      []byte
	Signature string
	SourceIP  string
}

type WebhookOutcome struct {
	Event     string
	Reference string
	Outcome   string
	Payment   *payment.Payment
}

type WebhookAck struct {
	Received bool   `json:"received"`
	Event    string `json:"event,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
}

type ListPaymentsQuery struct {
	Page  int
	Limit int
}

// ParseListPaymentsQuery reads page/limit query values, applying defaults
// for absent values.
func ParseListPaymentsQuery(page, limit string) (ListPaymentsQuery, error) {
	q := ListPaymentsQuery{Page: DefaultPage, Limit: DefaultLimit}

	if page != "" {
		n, err := strconv.Atoi(page)
		if err != nil {
			return q, errors.NewValidationFieldError("page", "page must be an integer", errors.ErrCodeInvalidPagination)
		}
		q.Page = n
	}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return q, errors.NewValidationFieldError("limit", "limit must be an integer", errors.ErrCodeInvalidPagination)
		}
		q.Limit = n
	}

	return q, q.Validate()
}

func (q ListPaymentsQuery) Validate() error {
	validator := validation.NewValidator()
	validator.Field("page", q.Page).MinInt(1, errors.ErrCodeInvalidPagination).MaxInt(MaxPage, errors.ErrCodeInvalidPagination)
	validator.Field("limit", q.Limit).MinInt(1, errors.ErrCodeInvalidPagination).MaxInt(MaxLimit, errors.ErrCodeInvalidPagination)
	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

func (q ListPaymentsQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

type PaymentPage struct {
	Items []*payment.Payment
	Total int64
	Page  int
	Limit int
}

func (p *PaymentPage) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return int(math.Ceil(float64(p.Total) / float64(p.Limit)))
}

type PaginationMeta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

type PaymentResponse struct {
	ID                   string          `json:"id"`
	PaymentReference     string          `json:"payment_reference"`
	MerchantID           string          `json:"merchant_id"`
	PaymentMethodID      string          `json:"payment_method_id"`
	Amount               string          `json:"amount"`
	Currency             string          `json:"currency"`
	Status               string          `json:"status"`
	Description          *string         `json:"description,omitempty"`
	CustomerEmail        string          `json:"customer_email"`
	CustomerName         *string         `json:"customer_name,omitempty"`
	CustomerPhone        *string         `json:"customer_phone,omitempty"`
	GatewayTransactionID *string         `json:"gateway_transaction_id,omitempty"`
	FailureReason        *string         `json:"failure_reason,omitempty"`
	Metadata             json.RawMessage `json:"metadata,omitempty"`
	GatewayResponse      json.RawMessage `json:"gateway_response,omitempty"`
	ProcessedAt          *time.Time      `json:"processed_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func ToResponse(p *payment.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:                   p.ID,
		PaymentReference:     p.PaymentReference,
		MerchantID:           p.MerchantID,
		PaymentMethodID:      p.PaymentMethodID,
		Amount:               p.Amount.StringFixed(2),
		Currency:             p.Currency,
		Status:               string(p.Status),
		Description:          p.Description,
		CustomerEmail:        p.CustomerEmail,
		CustomerName:         p.CustomerName,
		CustomerPhone:        p.CustomerPhone,
		GatewayTransactionID: p.GatewayTransactionID,
		FailureReason:        p.FailureReason,
		ProcessedAt:          p.ProcessedAt,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
	if len(p.Metadata) > 0 {
		resp.Metadata = json.RawMessage(p.Metadata)
	}
	if len(p.GatewayResponse) > 0 {
		resp.GatewayResponse = json.RawMessage(p.GatewayResponse)
	}
	return resp
}

func ToResponses(items []*payment.Payment) []PaymentResponse {
	out := make([]PaymentResponse, 0, len(items))
	for _, p := range items {
		out = append(out, ToResponse(p))
	}
	return out
}

type ResolveAccountQuery struct {
	AccountNumber string
	BankCode      string
}

func (q ResolveAccountQuery) Validate() error {
	validator := validation.NewValidator()
	validator.Field("account_number", q.AccountNumber).Required().MinLength(10).MaxLength(10)
	validator.Field("bank_code", q.BankCode).Required().MaxLength(10)
	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}
