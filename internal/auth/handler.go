package auth

import (
	"encoding/json"
	"net/http"

	errors "github.com/frahmantamala/payment-reconciler/internal"
	"github.com/frahmantamala/payment-reconciler/internal/transport"
	"github.com/frahmantamala/payment-reconciler/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, svc ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     svc,
	}
}

// Login handles POST /api/v1/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeInvalidRequestBody))
		return
	}

	tokens, err := h.Service.Authenticate(r.Context(), dto)
	if err != nil {
		h.Logger.Warn("Login: authentication failed", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, tokens, "")
}

// AuthMiddleware resolves the bearer token to an active merchant and stores
// its id on the request context.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.HandleError(w, errors.ErrMissingToken)
			return
		}

		m, err := h.Service.AuthorizeToken(r.Context(), token)
		if err != nil {
			h.Logger.Warn("auth middleware: token rejected", "error", err, "path", r.URL.Path)
			h.HandleServiceError(w, err)
			return
		}

		ctx := errors.ContextWithMerchantID(r.Context(), m.ID)
		ctx = logger.With(ctx, "merchant_id", m.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
