package paymentmethod

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/payment-reconciler/internal"
	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/paymentmethod"
	"github.com/frahmantamala/payment-reconciler/internal/transport"
)

type ServiceAPI interface {
	Create(ctx context.Context, merchantID string, req *CreatePaymentMethodRequest) (*paymentmethod.PaymentMethod, error)
	List(ctx context.Context, merchantID string) ([]*paymentmethod.PaymentMethod, error)
	Get(ctx context.Context, id, merchantID string) (*paymentmethod.PaymentMethod, error)
	Update(ctx context.Context, id, merchantID string, req *UpdatePaymentMethodRequest) (*paymentmethod.PaymentMethod, error)
	Delete(ctx context.Context, id, merchantID string) error
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

// CreatePaymentMethod handles POST /api/v1/payment-methods
func (h *Handler) CreatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.merchantID(w, r)
	if !ok {
		return
	}

	var req CreatePaymentMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("CreatePaymentMethod: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeInvalidRequestBody))
		return
	}

	m, err := h.Service.Create(r.Context(), merchantID, &req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteSuccess(w, http.StatusCreated, ToResponse(m), "Payment method created")
}

// ListPaymentMethods handles GET /api/v1/payment-methods
func (h *Handler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.merchantID(w, r)
	if !ok {
		return
	}

	methods, err := h.Service.List(r.Context(), merchantID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, ToResponses(methods), "")
}

// GetPaymentMethod handles GET /api/v1/payment-methods/{id}
func (h *Handler) GetPaymentMethod(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.merchantID(w, r)
	if !ok {
		return
	}

	m, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"), merchantID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, ToResponse(m), "")
}

// UpdatePaymentMethod handles PUT /api/v1/payment-methods/{id}
func (h *Handler) UpdatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.merchantID(w, r)
	if !ok {
		return
	}

	var req UpdatePaymentMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("UpdatePaymentMethod: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeInvalidRequestBody))
		return
	}

	m, err := h.Service.Update(r.Context(), chi.URLParam(r, "id"), merchantID, &req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, ToResponse(m), "Payment method updated")
}

// DeletePaymentMethod handles DELETE /api/v1/payment-methods/{id}
func (h *Handler) DeletePaymentMethod(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.merchantID(w, r)
	if !ok {
		return
	}

	if err := h.Service.Delete(r.Context(), chi.URLParam(r, "id"), merchantID); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, nil, "Payment method deleted")
}

func (h *Handler) merchantID(w http.ResponseWriter, r *http.Request) (string, bool) {
	merchantID := errors.MerchantIDFromContext(r.Context())
	if merchantID == "" {
		h.Logger.Error("merchant not found in context", "path", r.URL.Path)
		h.HandleError(w, errors.ErrMissingToken)
		return "", false
	}
	return merchantID, true
}
