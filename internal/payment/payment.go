package payment

import (
	"strings"

	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/payment"
)

// transitions is the payment state machine. Terminal states have no
// outgoing edges except completed, which can only become refunded.
var transitions = map[payment.Status][]payment.Status{
	payment.StatusPending:    {payment.StatusProcessing, payment.StatusCompleted, payment.StatusFailed, payment.StatusCancelled},
	payment.StatusProcessing: {payment.StatusCompleted, payment.StatusFailed, payment.StatusCancelled},
	payment.StatusCompleted:  {payment.StatusRefunded},
}

func CanTransition(from, to payment.Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// MapGatewayStatus maps a Paystack transaction status onto the payment
// lifecycle. Unknown statuses fail closed.
func MapGatewayStatus(gatewayStatus string) payment.Status {
	switch strings.ToLower(strings.TrimSpace(gatewayStatus)) {
	case "success":
		return payment.StatusCompleted
	case "failed":
		return payment.StatusFailed
	case "abandoned":
		return payment.StatusCancelled
	case "pending":
		return payment.StatusPending
	default:
		return payment.StatusFailed
	}
}
