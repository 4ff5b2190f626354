package paymentgateway_test

import (
	"io"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-reconciler/internal/paymentgateway"
)

var _ = Describe("WebhookAuthenticator", func() {
	const secret = "sk_test_webhook"

	var (
		auth    *paymentgateway.WebhookAuthenticator
		body    []byte
		trusted = []string{"52.31.139.75", "52.49.173.169", "52.214.14.220"}
	)

	BeforeEach(func() {
		auth = paymentgateway.NewWebhookAuthenticator(secret, trusted, slog.New(slog.NewTextHandler(io.Discard, nil)))
		body = []byte(`{"event":"charge.success","data":{"reference":"PAY_1_X","status":"success","amount":10000}}`)
	})

	It("accepts a correctly signed body and exposes the event", func() {
		result := auth.Authenticate(body, paymentgateway.Sign(secret, body), "")

		Expect(result.IsValid).To(BeTrue())
		Expect(result.Event).To(Equal("charge.success"))
		Expect(string(result.Data)).To(ContainSubstring("PAY_1_X"))
	})

	It("accepts an upper-cased signature header", func() {
		sig := paymentgateway.Sign(secret, body)
		upper := []byte(sig)
		for i, c := range upper {
			if c >= 'a' && c <= 'f' {
				upper[i] = c - 32
			}
		}
		Expect(auth.Authenticate(body, string(upper), "").IsValid).To(BeTrue())
	})

	It("rejects any single-byte change to the body", func() {
		sig := paymentgateway.Sign(secret, body)
		for i := range body {
			mutated := append([]byte(nil), body...)
			mutated[i] ^= 0x01
			Expect(auth.Authenticate(mutated, sig, "").IsValid).To(BeFalse(), "byte %d", i)
		}
	})

	It("rejects any single-character change to the signature", func() {
		sig := []byte(paymentgateway.Sign(secret, body))
		for i := range sig {
			mutated := append([]byte(nil), sig...)
			if mutated[i] == '0' {
				mutated[i] = '1'
			} else {
				mutated[i] = '0'
			}
			Expect(auth.Authenticate(body, string(mutated), "").IsValid).To(BeFalse(), "char %d", i)
		}
	})

	It("rejects a missing signature", func() {
		result := auth.Authenticate(body, "", "")
		Expect(result.IsValid).To(BeFalse())
		Expect(result.Event).To(BeEmpty())
	})

	It("rejects everything when no secret is configured", func() {
		unconfigured := paymentgateway.NewWebhookAuthenticator("", nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
		Expect(unconfigured.Authenticate(body, paymentgateway.Sign("", body), "").IsValid).To(BeFalse())
	})

	It("rejects a signed body that is not JSON", func() {
		raw := []byte("not json")
		Expect(auth.Authenticate(raw, paymentgateway.Sign(secret, raw), "").IsValid).To(BeFalse())
	})

	Context("source address", func() {
		It("accepts a trusted address, with or without port", func() {
			sig := paymentgateway.Sign(secret, body)
			Expect(auth.Authenticate(body, sig, "52.31.139.75").IsValid).To(BeTrue())
			Expect(auth.Authenticate(body, sig, "52.49.173.169:44321").IsValid).To(BeTrue())
		})

		It("rejects an untrusted address even with a valid signature", func() {
			Expect(auth.Authenticate(body, paymentgateway.Sign(secret, body), "10.0.0.8").IsValid).To(BeFalse())
		})

		It("skips the check when no allow-list is configured", func() {
			open := paymentgateway.NewWebhookAuthenticator(secret, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
			Expect(open.Authenticate(body, paymentgateway.Sign(secret, body), "10.0.0.8").IsValid).To(BeTrue())
		})
	})
})
