package events

import (
	"time"

	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/payment"
	"github.com/google/uuid"
)

const (
	EventTypePaymentInitiated = "payment-initiated"
	EventTypePaymentCompleted = "payment-completed"
	EventTypePaymentFailed    = "payment-failed"
)

// PaymentEventTypes lists every lifecycle event downstream sinks forward.
var PaymentEventTypes = []string{
	EventTypePaymentInitiated,
	EventTypePaymentCompleted,
	EventTypePaymentFailed,
}

// PaymentEvent is a snapshot of a payment taken right after the status
// change that produced it. Data holds the wire representation consumed by
// downstream services.
type PaymentEvent struct {
	BaseEvent
	PaymentID        string `json:"payment_id"`
	PaymentReference string `json:"payment_reference"`
	MerchantID       string `json:"merchant_id"`
	Status           string `json:"status"`
	TraceID          string `json:"trace_id,omitempty"`
}

func NewPaymentInitiatedEvent(p *payment.Payment) *PaymentEvent {
	return newPaymentEvent(EventTypePaymentInitiated, p)
}

func NewPaymentCompletedEvent(p *payment.Payment) *PaymentEvent {
	return newPaymentEvent(EventTypePaymentCompleted, p)
}

func NewPaymentFailedEvent(p *payment.Payment) *PaymentEvent {
	return newPaymentEvent(EventTypePaymentFailed, p)
}

// WithTraceID tags the event with the request trace that caused it.
func (e *PaymentEvent) WithTraceID(traceID string) *PaymentEvent {
	e.TraceID = traceID
	return e
}

func newPaymentEvent(eventType string, p *payment.Payment) *PaymentEvent {
	now := time.Now().UTC()

	metadata := map[string]interface{}{
		"paymentMethodId": p.PaymentMethodID,
	}
	if p.ProcessedAt != nil {
		metadata["processedAt"] = p.ProcessedAt.UTC().Format(time.RFC3339Nano)
	}
	if p.GatewayTransactionID != nil {
		metadata["gatewayTransactionId"] = *p.GatewayTransactionID
	}
	if p.Description != nil {
		metadata["description"] = *p.Description
	}

	data := map[string]interface{}{
		"eventType":        eventType,
		"paymentId":        p.ID,
		"paymentReference": p.PaymentReference,
		"merchantId":       p.MerchantID,
		"amount":           p.Amount.StringFixed(2),
		"currency":         p.Currency,
		"status":           string(p.Status),
		"customerEmail":    p.CustomerEmail,
		"timestamp":        now.Format(time.RFC3339Nano),
		"metadata":         metadata,
	}
	if p.CustomerName != nil {
		data["customerName"] = *p.CustomerName
	}
	if p.FailureReason != nil {
		data["failureReason"] = *p.FailureReason
	}

	return &PaymentEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: now,
			Data:      data,
		},
		PaymentID:        p.ID,
		PaymentReference: p.PaymentReference,
		MerchantID:       p.MerchantID,
		Status:           string(p.Status),
	}
}
