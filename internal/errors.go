package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeValidation       ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound         ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized     ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden        ErrorType = "FORBIDDEN"
	ErrorTypeConflict         ErrorType = "CONFLICT"
	ErrorTypeInternal         ErrorType = "INTERNAL_ERROR"
	ErrorTypeGateway          ErrorType = "GATEWAY_ERROR"
	ErrorTypeVerification     ErrorType = "VERIFICATION_ERROR"
	ErrorTypeInvalidSignature ErrorType = "INVALID_SIGNATURE"
)

type ErrorCode string

const (
	ErrCodeValidationFailed   ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount      ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidCurrency    ErrorCode = "INVALID_CURRENCY"
	ErrCodeInvalidEmail       ErrorCode = "INVALID_EMAIL"
	ErrCodeInvalidURL         ErrorCode = "INVALID_URL"
	ErrCodeInvalidID          ErrorCode = "INVALID_ID"
	ErrCodeInvalidPagination  ErrorCode = "INVALID_PAGINATION"
	ErrCodeInvalidRequestBody ErrorCode = "INVALID_REQUEST_BODY"

	ErrCodePaymentNotFound       ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodePaymentMethodNotFound ErrorCode = "PAYMENT_METHOD_NOT_FOUND"
	ErrCodeInvalidPaymentMethod  ErrorCode = "INVALID_PAYMENT_METHOD"
	ErrCodeReferenceConflict     ErrorCode = "PAYMENT_REFERENCE_CONFLICT"

	ErrCodeGatewayFailed      ErrorCode = "GATEWAY_FAILED"
	ErrCodeVerificationFailed ErrorCode = "VERIFICATION_FAILED"
	ErrCodeInvalidSignature   ErrorCode = "INVALID_SIGNATURE"

	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeMerchantInactive   ErrorCode = "MERCHANT_INACTIVE"
	ErrCodeMissingToken       ErrorCode = "MISSING_TOKEN"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewGatewayError reports that the payment gateway rejected or could not
// complete an initialization request. The detail is safe to show merchants.
func NewGatewayError(detail string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeGateway,
		Code:       ErrCodeGatewayFailed,
		Message:    "Payment gateway request failed",
		Details:    map[string]string{"reason": detail},
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

func NewVerificationError(detail string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeVerification,
		Code:       ErrCodeVerificationFailed,
		Message:    "Payment verification failed",
		Details:    map[string]string{"reason": detail},
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

func NewInvalidSignatureError() *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidSignature,
		Code:       ErrCodeInvalidSignature,
		Message:    "Invalid webhook signature",
		StatusCode: http.StatusUnauthorized,
	}
}

var (
	ErrPaymentNotFound       = NewNotFoundError("Payment not found", ErrCodePaymentNotFound)
	ErrPaymentMethodNotFound = NewNotFoundError("Payment method not found or inactive", ErrCodePaymentMethodNotFound)

	ErrInvalidCredentials = NewUnauthorizedError("Invalid email or password", ErrCodeInvalidCredentials)
	ErrMerchantInactive   = NewForbiddenError("Merchant account is inactive", ErrCodeMerchantInactive)
	ErrMissingToken       = NewUnauthorizedError("Missing authorization token", ErrCodeMissingToken)
	ErrInvalidToken       = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired       = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
