package payment_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payment-reconciler/internal"
	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/payment"
	gw "github.com/frahmantamala/payment-reconciler/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/paymentmethod"
	paymentpkg "github.com/frahmantamala/payment-reconciler/internal/payment"
	"github.com/frahmantamala/payment-reconciler/internal/paymentgateway"
	"github.com/frahmantamala/payment-reconciler/internal/transport"
)

const webhookSecret = "sk_test_webhook_secret"

// signedGateway authenticates webhooks for real and fakes everything else.
type signedGateway struct {
	*fakeGateway
	webhooks *paymentgateway.WebhookAuthenticator
}

func (g *signedGateway) AuthenticateWebhook(body []byte, signature, sourceIP string) gw.WebhookResult {
	return g.webhooks.Authenticate(body, signature, sourceIP)
}

func decodeBody(recorder *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &body)).To(gomega.Succeed())
	return body
}

func withMerchant(req *http.Request, merchantID string) *http.Request {
	return req.WithContext(internal.ContextWithMerchantID(req.Context(), merchantID))
}

var _ = ginkgo.Describe("PaymentHandler", func() {
	var (
		payments  *memoryPayments
		publisher *recordingPublisher
		router    *chi.Mux
		recorder  *httptest.ResponseRecorder
	)

	ginkgo.BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		payments = newMemoryPayments()
		publisher = &recordingPublisher{}

		gateway := &signedGateway{
			fakeGateway: &fakeGateway{verification: successVerification()},
			webhooks:    paymentgateway.NewWebhookAuthenticator(webhookSecret, nil, logger),
		}

		service := paymentpkg.NewService(paymentpkg.Deps{
			Payments: payments,
			PaymentMethods: &memoryMethods{methods: map[string]*paymentmethod.PaymentMethod{
				testMethod: {ID: testMethod, MerchantID: testMerchant, IsActive: true},
			}},
			Gateway:   gateway,
			Publisher: publisher,
			Logger:    logger,
		}, paymentpkg.Config{CallbackURL: "https://merchant.example.com/callback"})

		handler := paymentpkg.NewHandler(transport.NewBaseHandler(logger), service, paymentpkg.HandlerConfig{})

		router = chi.NewRouter()
		router.Post("/payments/initiate", handler.InitiatePayment)
		router.Get("/payments/callback", handler.PaymentCallback)
		router.Post("/payments/callback", handler.PaymentCallback)
		router.Post("/payments/webhook", handler.PaymentWebhook)
		router.Get("/payments", handler.ListPayments)
		router.Get("/payments/{reference}", handler.GetPayment)
		router.Get("/payments/{reference}/verify", handler.VerifyPayment)

		recorder = httptest.NewRecorder()
	})

	seed := func() {
		payments.seed(&payment.Payment{
			PaymentReference: existingReference,
			MerchantID:       testMerchant,
			PaymentMethodID:  testMethod,
			Amount:           decimal.RequireFromString("100.00"),
			Currency:         "NGN",
			CustomerEmail:    "ada@example.com",
		})
	}

	ginkgo.Describe("InitiatePayment", func() {
		ginkgo.It("returns 201 with the checkout url", func() {
			body := []byte(`{"amount":"100.00","payment_method_id":"` + testMethod + `","customer_email":"ada@example.com"}`)
			req := withMerchant(httptest.NewRequest(http.MethodPost, "/payments/initiate", bytes.NewReader(body)), testMerchant)

			router.ServeHTTP(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusCreated))
			resp := decodeBody(recorder)
			gomega.Expect(resp["success"]).To(gomega.BeTrue())
			data := resp["data"].(map[string]interface{})
			gomega.Expect(data["authorization_url"]).To(gomega.Equal("https://checkout.paystack.com/abc123"))
			gomega.Expect(data["payment"].(map[string]interface{})["amount"]).To(gomega.Equal("100.00"))
		})

		ginkgo.It("returns 401 without an authenticated merchant", func() {
			req := httptest.NewRequest(http.MethodPost, "/payments/initiate", bytes.NewReader([]byte(`{}`)))

			router.ServeHTTP(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusUnauthorized))
		})

		ginkgo.It("returns 400 for a malformed body", func() {
			req := withMerchant(httptest.NewRequest(http.MethodPost, "/payments/initiate", bytes.NewReader([]byte(`{`))), testMerchant)

			router.ServeHTTP(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
		})
	})

	ginkgo.Describe("PaymentCallback", func() {
		ginkgo.It("accepts the gateway redirect query", func() {
			seed()
			req := httptest.NewRequest(http.MethodGet, "/payments/callback?trxref="+existingReference+"&reference="+existingReference, nil)

			router.ServeHTTP(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			data := decodeBody(recorder)["data"].(map[string]interface{})
			gomega.Expect(data["status"]).To(gomega.Equal("completed"))
		})

		ginkgo.It("accepts a JSON body", func() {
			seed()
			req := httptest.NewRequest(http.MethodPost, "/payments/callback", bytes.NewReader([]byte(`{"reference":"`+existingReference+`"}`)))

			router.ServeHTTP(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
		})

		ginkgo.It("returns 404 for an unknown reference", func() {
			req := httptest.NewRequest(http.MethodGet, "/payments/callback?reference=PAY_0_MISSING00", nil)

			router.ServeHTTP(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusNotFound))
		})
	})

	ginkgo.Describe("PaymentWebhook", func() {
		post := func(body []byte, signature string) {
			req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader(body))
			req.Header.Set("x-paystack-signature", signature)
			router.ServeHTTP(recorder, req)
		}

		ginkgo.It("applies a correctly signed delivery", func() {
			seed()
			body := []byte(`{"event":"charge.success","data":{"id":77,"reference":"` + existingReference + `","status":"success","amount":10000,"currency":"NGN"}}`)

			post(body, paymentgateway.Sign(webhookSecret, body))

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			resp := decodeBody(recorder)
			gomega.Expect(resp["received"]).To(gomega.BeTrue())
			gomega.Expect(resp["outcome"]).To(gomega.Equal("updated"))
			gomega.Expect(payments.get(existingReference).Status).To(gomega.Equal(payment.StatusCompleted))
		})

		ginkgo.It("returns 200 for an unknown reference without side effects", func() {
			body := []byte(`{"event":"charge.success","data":{"reference":"PAY_0_NOBODY000","amount":10000}}`)

			post(body, paymentgateway.Sign(webhookSecret, body))

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decodeBody(recorder)["outcome"]).To(gomega.Equal("not_found"))
			gomega.Expect(publisher.types()).To(gomega.BeEmpty())
		})

		ginkgo.It("returns 401 when the body was altered after signing", func() {
			seed()
			body := []byte(`{"event":"charge.success","data":{"reference":"` + existingReference + `"}}`)
			signature := paymentgateway.Sign(webhookSecret, body)
			body[len(body)-3] = 'X'

			post(body, signature)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(payments.get(existingReference).Status).To(gomega.Equal(payment.StatusPending))
		})

		ginkgo.It("returns 401 without a signature", func() {
			post([]byte(`{"event":"charge.success","data":{}}`), "")

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusUnauthorized))
		})
	})

	ginkgo.Describe("ListPayments", func() {
		ginkgo.It("returns pagination metadata", func() {
			seed()
			req := withMerchant(httptest.NewRequest(http.MethodGet, "/payments?page=1&limit=10", nil), testMerchant)

			router.ServeHTTP(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			meta := decodeBody(recorder)["meta"].(map[string]interface{})
			gomega.Expect(meta["total"]).To(gomega.BeNumerically("==", 1))
			gomega.Expect(meta["totalPages"]).To(gomega.BeNumerically("==", 1))
		})

		ginkgo.It("rejects a limit above 100", func() {
			req := withMerchant(httptest.NewRequest(http.MethodGet, "/payments?limit=500", nil), testMerchant)

			router.ServeHTTP(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
		})
	})

	ginkgo.Describe("GetPayment", func() {
		ginkgo.It("hides payments of other merchants", func() {
			seed()
			req := withMerchant(httptest.NewRequest(http.MethodGet, "/payments/"+existingReference, nil), otherMerchant)

			router.ServeHTTP(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusNotFound))
		})

		ginkgo.It("force-verifies through the verify route", func() {
			seed()
			req := withMerchant(httptest.NewRequest(http.MethodGet, "/payments/"+existingReference+"/verify", nil), testMerchant)

			router.ServeHTTP(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(payments.get(existingReference).Status).To(gomega.Equal(payment.StatusCompleted))
		})
	})
})
