package paymentmethod

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	errors "github.com/frahmantamala/payment-reconciler/internal"
	"github.com/frahmantamala/payment-reconciler/internal/core/common/validation"
	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/paymentmethod"
)

var SupportedTypes = []string{
	string(paymentmethod.TypeCreditCard),
	string(paymentmethod.TypeDebitCard),
	string(paymentmethod.TypeBankTransfer),
	string(paymentmethod.TypeDigitalWallet),
}

type CreatePaymentMethodRequest struct {
	Type           string                 `json:"type"`
	ProviderName   string                 `json:"provider_name"`
	LastFourDigits *string                `json:"last_four_digits,omitempty"`
	ExpiryMonth    *string                `json:"expiry_month,omitempty"`
	ExpiryYear     *string                `json:"expiry_year,omitempty"`
	HolderName     *string                `json:"holder_name,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

func (r *CreatePaymentMethodRequest) Normalize() {
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
	r.ProviderName = strings.TrimSpace(r.ProviderName)
}

func (r *CreatePaymentMethodRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("type", r.Type).Required().OneOf(SupportedTypes, errors.ErrCodeInvalidPaymentMethod)
	validator.Field("provider_name", r.ProviderName).Required().MaxLength(100)
	validator.Field("last_four_digits", r.LastFourDigits).Custom(digits("last_four_digits", 4, 4))
	validator.Field("expiry_month", r.ExpiryMonth).Custom(expiryMonth)
	validator.Field("expiry_year", r.ExpiryYear).Custom(digits("expiry_year", 4, 4))
	validator.Field("holder_name", r.HolderName).MaxLength(255)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// UpdatePaymentMethodRequest only touches the fields that are present.
type UpdatePaymentMethodRequest struct {
	IsActive   *bool                  `json:"is_active,omitempty"`
	HolderName *string                `json:"holder_name,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

func (r *UpdatePaymentMethodRequest) Validate() error {
	validator := validation.NewValidator()
	validator.Field("holder_name", r.HolderName).MaxLength(255)
	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

func (r *UpdatePaymentMethodRequest) Empty() bool {
	return r.IsActive == nil && r.HolderName == nil && r.Metadata == nil
}

type PaymentMethodResponse struct {
	ID             string          `json:"id"`
	MerchantID     string          `json:"merchant_id"`
	Type           string          `json:"type"`
	ProviderName   string          `json:"provider_name"`
	LastFourDigits *string         `json:"last_four_digits,omitempty"`
	ExpiryMonth    *string         `json:"expiry_month,omitempty"`
	ExpiryYear     *string         `json:"expiry_year,omitempty"`
	HolderName     *string         `json:"holder_name,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func ToResponse(m *paymentmethod.PaymentMethod) PaymentMethodResponse {
	resp := PaymentMethodResponse{
		ID:             m.ID,
		MerchantID:     m.MerchantID,
		Type:           string(m.Type),
		ProviderName:   m.ProviderName,
		LastFourDigits: m.LastFourDigits,
		ExpiryMonth:    m.ExpiryMonth,
		ExpiryYear:     m.ExpiryYear,
		HolderName:     m.HolderName,
		IsActive:       m.IsActive,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if len(m.Metadata) > 0 {
		resp.Metadata = json.RawMessage(m.Metadata)
	}
	return resp
}

func ToResponses(methods []*paymentmethod.PaymentMethod) []PaymentMethodResponse {
	out := make([]PaymentMethodResponse, 0, len(methods))
	for _, m := range methods {
		out = append(out, ToResponse(m))
	}
	return out
}

func digits(field string, min, max int) func(interface{}) *errors.AppError {
	return func(value interface{}) *errors.AppError {
		v, ok := value.(*string)
		if !ok || v == nil {
			return nil
		}
		if len(*v) < min || len(*v) > max || strings.Trim(*v, "0123456789") != "" {
			message := fmt.Sprintf("%s must be %d digits", field, max)
			return errors.NewValidationFieldError(field, message, errors.ErrCodeInvalidPaymentMethod)
		}
		return nil
	}
}

func expiryMonth(value interface{}) *errors.AppError {
	if appErr := digits("expiry_month", 1, 2)(value); appErr != nil {
		return appErr
	}
	v, ok := value.(*string)
	if !ok || v == nil {
		return nil
	}
	month, err := strconv.Atoi(*v)
	if err != nil || month < 1 || month > 12 {
		return errors.NewValidationFieldError("expiry_month", "expiry_month must be between 1 and 12", errors.ErrCodeInvalidPaymentMethod)
	}
	return nil
}
