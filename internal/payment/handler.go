package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	errors "github.com/frahmantamala/payment-reconciler/internal"
	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/payment"
	gw "github.com/frahmantamala/payment-reconciler/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/payment-reconciler/internal/transport"
	"github.com/go-chi/chi"
)

const (
	defaultSignatureHeader = "x-paystack-signature"
	defaultMaxWebhookBody  = 1 << 20
)

type ServiceAPI interface {
	Initiate(ctx context.Context, merchantID string, req *InitiatePaymentRequest) (*InitiateResult, error)
	ConfirmCallback(ctx context.Context, reference string) (*payment.Payment, error)
	ConfirmWebhook(ctx context.Context, delivery WebhookDelivery) (*WebhookOutcome, error)
	ForceVerify(ctx context.Context, reference, merchantID string) (*payment.Payment, error)
	GetPayment(ctx context.Context, reference, merchantID string) (*payment.Payment, error)
	ListPayments(ctx context.Context, merchantID string, query ListPaymentsQuery) (*PaymentPage, error)
	ListBanks(ctx context.Context, country string) ([]gw.Bank, error)
	ResolveAccount(ctx context.Context, query ResolveAccountQuery) (*gw.AccountResolution, error)
}

type HandlerConfig struct {
	SignatureHeader string
	MaxWebhookBody  int64
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	config  HandlerConfig
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI, config HandlerConfig) *Handler {
	if config.SignatureHeader == "" {
		config.SignatureHeader = defaultSignatureHeader
	}
	if config.MaxWebhookBody <= 0 {
		config.MaxWebhookBody = defaultMaxWebhookBody
	}
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
		config:      config,
	}
}

// InitiatePayment handles POST /api/v1/payments/initiate
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.merchantID(w, r)
	if !ok {
		return
	}

	var req InitiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("InitiatePayment: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeInvalidRequestBody))
		return
	}

	result, err := h.Service.Initiate(r.Context(), merchantID, &req)
	if err != nil {
		h.Logger.Error("InitiatePayment: service error", "error", err, "merchant_id", merchantID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("InitiatePayment: payment initiated",
		"payment_reference", result.Payment.PaymentReference,
		"merchant_id", merchantID)

	h.WriteSuccess(w, http.StatusCreated, InitiatePaymentResponse{
		Payment:          ToResponse(result.Payment),
		AuthorizationURL: result.AuthorizationURL,
		AccessCode:       result.AccessCode,
		Reference:        result.Payment.PaymentReference,
	}, "Payment initiated")
}

// PaymentCallback handles GET and POST /api/v1/payments/callback
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req CallbackRequest
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		req = CallbackRequest{Reference: q.Get("reference"), TrxRef: q.Get("trxref"), Status: q.Get("status")}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("PaymentCallback: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeInvalidRequestBody))
		return
	}

	if err := req.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	p, err := h.Service.ConfirmCallback(r.Context(), req.ResolvedReference())
	if err != nil {
		h.Logger.Error("PaymentCallback: service error", "error", err, "payment_reference", req.ResolvedReference())
		h.HandleServiceError(w, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, ToResponse(p), "Payment status updated")
}

// PaymentWebhook handles POST /api/v1/payments/webhook. The body is read raw
// because the signature covers the exact bytes sent.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.MaxWebhookBody))
	if err != nil {
		h.Logger.Error("PaymentWebhook: failed to read body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeInvalidRequestBody))
		return
	}

	outcome, err := h.Service.ConfirmWebhook(r.Context(), WebhookDelivery{
		Body:      body,
		Signature: strings.TrimSpace(r.Header.Get(h.config.SignatureHeader)),
		SourceIP:  transport.ClientIP(r),
	})
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, WebhookAck{
		Received: true,
		Event:    outcome.Event,
		Outcome:  outcome.Outcome,
	})
}

// ListPayments handles GET /api/v1/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.merchantID(w, r)
	if !ok {
		return
	}

	query, err := ParseListPaymentsQuery(r.URL.Query().Get("page"), r.URL.Query().Get("limit"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	page, err := h.Service.ListPayments(r.Context(), merchantID, query)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WritePage(w, ToResponses(page.Items), PaginationMeta{
		Total:      page.Total,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: page.TotalPages(),
	})
}

// GetPayment handles GET /api/v1/payments/{reference}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.merchantID(w, r)
	if !ok {
		return
	}

	p, err := h.Service.GetPayment(r.Context(), chi.URLParam(r, "reference"), merchantID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, ToResponse(p), "")
}

// VerifyPayment handles GET /api/v1/payments/{reference}/verify
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.merchantID(w, r)
	if !ok {
		return
	}

	reference := chi.URLParam(r, "reference")
	p, err := h.Service.ForceVerify(r.Context(), reference, merchantID)
	if err != nil {
		h.Logger.Error("VerifyPayment: service error", "error", err, "payment_reference", reference)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, ToResponse(p), "Payment verified")
}

// ListBanks handles GET /api/v1/banks
func (h *Handler) ListBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := h.Service.ListBanks(r.Context(), r.URL.Query().Get("country"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, banks, "")
}

// ResolveAccount handles GET /api/v1/banks/resolve
func (h *Handler) ResolveAccount(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resolution, err := h.Service.ResolveAccount(r.Context(), ResolveAccountQuery{
		AccountNumber: strings.TrimSpace(q.Get("account_number")),
		BankCode:      strings.TrimSpace(q.Get("bank_code")),
	})
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, resolution, "")
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
