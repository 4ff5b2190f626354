package auth

import (
	"strings"

	"github.com/frahmantamala/payment-reconciler/internal/core/common/validation"
)

// LoginDTO is the transport shape used by the HTTP handler to accept login requests.
type LoginDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (d *LoginDTO) Normalize() {
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
}

func (d LoginDTO) Validate() error {
	validator := validation.NewValidator()
	validator.Field("email", d.Email).Required().Email()
	validator.Field("password", d.Password).Required()
	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type MerchantResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	MerchantCode string `json:"merchant_code"`
}
