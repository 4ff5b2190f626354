package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/payment-reconciler/internal/auth"
	"github.com/frahmantamala/payment-reconciler/internal/payment"
	"github.com/frahmantamala/payment-reconciler/internal/paymentmethod"
	"github.com/frahmantamala/payment-reconciler/internal/transport/middleware"
	"github.com/frahmantamala/payment-reconciler/internal/transport/swagger"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

type Handlers struct {
	Auth          *auth.Handler
	Payment       *payment.Handler
	PaymentMethod *paymentmethod.Handler
	Health        *HealthHandler
}

type RouterConfig struct {
	AllowedOrigins string
	// TrustProxyHeaders makes X-Forwarded-For / X-Real-IP the client address.
	// Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool
	OpenAPISpec       []byte
}

func RegisterAllRoutes(router *chi.Mux, handlers Handlers, config RouterConfig, logger *slog.Logger) {
	// Apply global middleware
	if config.TrustProxyHeaders {
		router.Use(chiMiddleware.RealIP)
	}
	router.Use(middleware.RequestID(logger))
	router.Use(middleware.Recovery)
	router.Use(middleware.CORS(config.AllowedOrigins))
	router.Use(middleware.RequestLogger)

	if len(config.OpenAPISpec) > 0 {
		router.Get("/openapi.yml", swagger.SpecHandler(config.OpenAPISpec))
		router.Handle("/swagger/*", swagger.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		if handlers.Health != nil {
			r.Get("/health", handlers.Health.Health)
			r.Get("/ping", handlers.Health.Ping)
		}

		if handlers.Auth != nil {
			r.Post("/auth/login", handlers.Auth.Login)
		}

		if handlers.Payment != nil {
			// Gateway-facing routes authenticate by reference lookup or signature.
			r.Get("/payments/callback", handlers.Payment.PaymentCallback)
			r.Post("/payments/callback", handlers.Payment.PaymentCallback)
			r.Post("/payments/webhook", handlers.Payment.PaymentWebhook)
		}

		if handlers.Auth == nil {
			return
		}

		r.Group(func(pr chi.Router) {
			pr.Use(handlers.Auth.AuthMiddleware)

			if handlers.Payment != nil {
				pr.Post("/payments/initiate", handlers.Payment.InitiatePayment)
				pr.Get("/payments", handlers.Payment.ListPayments)
				pr.Get("/payments/{reference}", handlers.Payment.GetPayment)
				pr.Get("/payments/{reference}/verify", handlers.Payment.VerifyPayment)

				pr.Get("/banks", handlers.Payment.ListBanks)
				pr.Get("/banks/resolve", handlers.Payment.ResolveAccount)
			}

			if handlers.PaymentMethod != nil {
				pr.Post("/payment-methods", handlers.PaymentMethod.CreatePaymentMethod)
				pr.Get("/payment-methods", handlers.PaymentMethod.ListPaymentMethods)
				pr.Get("/payment-methods/{id}", handlers.PaymentMethod.GetPaymentMethod)
				pr.Put("/payment-methods/{id}", handlers.PaymentMethod.UpdatePaymentMethod)
				pr.Delete("/payment-methods/{id}", handlers.PaymentMethod.DeletePaymentMethod)
			}
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": map[string]string{"type": "NOT_FOUND", "code": "ROUTE_NOT_FOUND", "message": "route not found"},
		})
	})
}
