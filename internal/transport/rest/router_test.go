package rest_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-reconciler/api"
	"github.com/frahmantamala/payment-reconciler/internal"
	"github.com/frahmantamala/payment-reconciler/internal/auth"
	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/merchant"
	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/payment"
	gw "github.com/frahmantamala/payment-reconciler/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/paymentmethod"
	paymentpkg "github.com/frahmantamala/payment-reconciler/internal/payment"
	paymentmethodpkg "github.com/frahmantamala/payment-reconciler/internal/paymentmethod"
	"github.com/frahmantamala/payment-reconciler/internal/transport"
	"github.com/frahmantamala/payment-reconciler/internal/transport/middleware"
	"github.com/frahmantamala/payment-reconciler/internal/transport/rest"
)

const (
	validToken = "valid-token"
	merchantID = "3f1c2a9e-8d7b-4c6a-9e5f-1a2b3c4d5e6f"
	methodID   = "5e4d3c2b-1a09-4f8e-9d7c-6b5a4f3e2d1c"
)

type stubAuth struct{}

func (stubAuth) Authenticate(_ context.Context, _ auth.LoginDTO) (auth.AuthTokens, error) {
	return auth.AuthTokens{AccessToken: validToken, TokenType: "Bearer"}, nil
}

func (stubAuth) AuthorizeToken(_ context.Context, token string) (*merchant.Merchant, error) {
	if token != validToken {
		return nil, internal.ErrInvalidToken
	}
	return &merchant.Merchant{ID: merchantID, IsActive: true}, nil
}

// stubPayments records the merchant each call was scoped to.
type stubPayments struct {
	merchant string
}

func (s *stubPayments) Initiate(_ context.Context, merchantID string, _ *paymentpkg.InitiatePaymentRequest) (*paymentpkg.InitiateResult, error) {
	s.merchant = merchantID
	return &paymentpkg.InitiateResult{Payment: &payment.Payment{PaymentReference: "PAY_1_ROUTER00"}}, nil
}

func (s *stubPayments) ConfirmCallback(_ context.Context, reference string) (*payment.Payment, error) {
	return &payment.Payment{PaymentReference: reference, Status: payment.StatusCompleted}, nil
}

func (s *stubPayments) ConfirmWebhook(_ context.Context, _ paymentpkg.WebhookDelivery) (*paymentpkg.WebhookOutcome, error) {
	return &paymentpkg.WebhookOutcome{Event: "charge.success", Outcome: "updated"}, nil
}

func (s *stubPayments) ForceVerify(_ context.Context, reference, merchantID string) (*payment.Payment, error) {
	s.merchant = merchantID
	return &payment.Payment{PaymentReference: reference, Status: payment.StatusCompleted}, nil
}

func (s *stubPayments) GetPayment(_ context.Context, reference, merchantID string) (*payment.Payment, error) {
	s.merchant = merchantID
	return &payment.Payment{PaymentReference: reference, MerchantID: merchantID}, nil
}

func (s *stubPayments) ListPayments(_ context.Context, merchantID string, q paymentpkg.ListPaymentsQuery) (*paymentpkg.PaymentPage, error) {
	s.merchant = merchantID
	return &paymentpkg.PaymentPage{Page: q.Page, Limit: q.Limit}, nil
}

func (s *stubPayments) ListBanks(_ context.Context, _ string) ([]gw.Bank, error) {
	return []gw.Bank{{Name: "Access Bank", Code: "044"}}, nil
}

func (s *stubPayments) ResolveAccount(_ context.Context, q paymentpkg.ResolveAccountQuery) (*gw.AccountResolution, error) {
	return &gw.AccountResolution{AccountNumber: q.AccountNumber, AccountName: "ADA LOVELACE"}, nil
}

type stubMethods struct {
	merchant string
}

func (s *stubMethods) Create(_ context.Context, merchantID string, req *paymentmethodpkg.CreatePaymentMethodRequest) (*paymentmethod.PaymentMethod, error) {
	s.merchant = merchantID
	return &paymentmethod.PaymentMethod{ID: methodID, MerchantID: merchantID, Type: paymentmethod.Type(req.Type), IsActive: true}, nil
}

func (s *stubMethods) List(_ context.Context, merchantID string) ([]*paymentmethod.PaymentMethod, error) {
	s.merchant = merchantID
	return []*paymentmethod.PaymentMethod{{ID: methodID, MerchantID: merchantID, IsActive: true}}, nil
}

func (s *stubMethods) Get(_ context.Context, id, merchantID string) (*paymentmethod.PaymentMethod, error) {
	s.merchant = merchantID
	return &paymentmethod.PaymentMethod{ID: id, MerchantID: merchantID}, nil
}

func (s *stubMethods) Update(_ context.Context, id, merchantID string, _ *paymentmethodpkg.UpdatePaymentMethodRequest) (*paymentmethod.PaymentMethod, error) {
	s.merchant = merchantID
	return &paymentmethod.PaymentMethod{ID: id, MerchantID: merchantID}, nil
}

func (s *stubMethods) Delete(_ context.Context, _, merchantID string) error {
	s.merchant = merchantID
	return nil
}

var _ = Describe("Router", func() {
	var (
		router   *chi.Mux
		payments *stubPayments
		methods  *stubMethods
		dbErr    error
	)

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		base := transport.NewBaseHandler(logger)
		payments = &stubPayments{}
		methods = &stubMethods{}
		dbErr = nil

		router = chi.NewRouter()
		rest.RegisterAllRoutes(router, rest.Handlers{
			Auth:          auth.NewHandler(base, stubAuth{}),
			Payment:       paymentpkg.NewHandler(base, payments, paymentpkg.HandlerConfig{}),
			PaymentMethod: paymentmethodpkg.NewHandler(base, methods),
			Health: rest.NewHealthHandler(map[string]rest.Checker{
				"postgres": func(context.Context) error { return dbErr },
			}),
		}, rest.RouterConfig{OpenAPISpec: api.OpenAPI}, logger)
	})

	serve := func(method, path, token string, body io.Reader) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, body)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)
		return recorder
	}

	Describe("health", func() {
		It("reports healthy when every check passes", func() {
			recorder := serve(http.MethodGet, "/api/v1/health", "", nil)

			Expect(recorder.Code).To(Equal(http.StatusOK))
			var resp rest.HealthResponse
			Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Status).To(Equal(rest.HealthHealthy))
			Expect(resp.Components).To(HaveKey("postgres"))
		})

		It("returns 503 when a dependency fails", func() {
			dbErr = errors.New("connection refused")

			recorder := serve(http.MethodGet, "/api/v1/health", "", nil)

			Expect(recorder.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(recorder.Body.String()).To(ContainSubstring("connection refused"))
		})

		It("answers ping", func() {
			Expect(serve(http.MethodGet, "/api/v1/ping", "", nil).Code).To(Equal(http.StatusOK))
		})
	})

	Describe("public gateway routes", func() {
		It("accepts callbacks without a token", func() {
			recorder := serve(http.MethodGet, "/api/v1/payments/callback?reference=PAY_1_ABC", "", nil)
			Expect(recorder.Code).To(Equal(http.StatusOK))
		})

		It("accepts webhooks without a token", func() {
			recorder := serve(http.MethodPost, "/api/v1/payments/webhook", "", strings.NewReader(`{}`))
			Expect(recorder.Code).To(Equal(http.StatusOK))
		})

		It("issues tokens on login", func() {
			recorder := serve(http.MethodPost, "/api/v1/auth/login", "", strings.NewReader(`{"email":"shop@example.com","password":"secret"}`))
			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(recorder.Body.String()).To(ContainSubstring(validToken))
		})
	})

	Describe("merchant routes", func() {
		DescribeTable("reject requests without a token",
			func(method, path string) {
				Expect(serve(method, path, "", nil).Code).To(Equal(http.StatusUnauthorized))
			},
			Entry("initiate", http.MethodPost, "/api/v1/payments/initiate"),
			Entry("list", http.MethodGet, "/api/v1/payments"),
			Entry("get", http.MethodGet, "/api/v1/payments/PAY_1_ABC"),
			Entry("verify", http.MethodGet, "/api/v1/payments/PAY_1_ABC/verify"),
			Entry("banks", http.MethodGet, "/api/v1/banks"),
			Entry("resolve", http.MethodGet, "/api/v1/banks/resolve?account_number=0123456789&bank_code=058"),
			Entry("create payment method", http.MethodPost, "/api/v1/payment-methods"),
			Entry("list payment methods", http.MethodGet, "/api/v1/payment-methods"),
			Entry("get payment method", http.MethodGet, "/api/v1/payment-methods/"+methodID),
			Entry("update payment method", http.MethodPut, "/api/v1/payment-methods/"+methodID),
			Entry("delete payment method", http.MethodDelete, "/api/v1/payment-methods/"+methodID),
		)

		It("rejects an invalid token", func() {
			Expect(serve(http.MethodGet, "/api/v1/payments", "forged", nil).Code).To(Equal(http.StatusUnauthorized))
		})

		It("scopes calls to the authenticated merchant", func() {
			recorder := serve(http.MethodGet, "/api/v1/payments/PAY_1_ABC/verify", validToken, nil)

			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(payments.merchant).To(Equal(merchantID))
		})

		DescribeTable("route payment method management for the authenticated merchant",
			func(method, path, body string, status int) {
				recorder := serve(method, path, validToken, strings.NewReader(body))

				Expect(recorder.Code).To(Equal(status))
				Expect(methods.merchant).To(Equal(merchantID))
			},
			Entry("create", http.MethodPost, "/api/v1/payment-methods", `{"type":"credit_card","provider_name":"VISA"}`, http.StatusCreated),
			Entry("list", http.MethodGet, "/api/v1/payment-methods", "", http.StatusOK),
			Entry("get", http.MethodGet, "/api/v1/payment-methods/"+methodID, "", http.StatusOK),
			Entry("update", http.MethodPut, "/api/v1/payment-methods/"+methodID, `{"holder_name":"Ada"}`, http.StatusOK),
			Entry("delete", http.MethodDelete, "/api/v1/payment-methods/"+methodID, "", http.StatusOK),
		)
	})

	It("sets a trace id on every response", func() {
		recorder := serve(http.MethodGet, "/api/v1/ping", "", nil)
		Expect(recorder.Header().Get(middleware.TraceIDHeader)).NotTo(BeEmpty())
	})

	It("returns a JSON 404 for unknown routes", func() {
		recorder := serve(http.MethodGet, "/api/v1/nope", "", nil)

		Expect(recorder.Code).To(Equal(http.StatusNotFound))
		Expect(recorder.Body.String()).To(ContainSubstring("ROUTE_NOT_FOUND"))
	})

	It("serves the openapi document", func() {
		recorder := serve(http.MethodGet, "/openapi.yml", "", nil)

		Expect(recorder.Code).To(Equal(http.StatusOK))
		Expect(recorder.Body.String()).To(HavePrefix("openapi: 3.0.3"))
		Expect(recorder.Body.String()).To(ContainSubstring("/api/v1/payment-methods/{id}:"))
	})
})
