package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-reconciler/internal/core/events"
	"github.com/frahmantamala/payment-reconciler/internal/publisher"
	"github.com/frahmantamala/payment-reconciler/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Publish sample payment events through the configured sink to check the downstream wiring`,
}

var publishEventCmd = &cobra.Command{
	Use:       "publish [event-type]",
	Short:     "Publish a sample payment event",
	Long:      `Publish a sample payment-initiated, payment-completed or payment-failed event to the configured sink`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: events.PaymentEventTypes,
	Run: func(cmd *cobra.Command, args []string) {
		if err := publishTestEvent(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to publish event: %v\n", err)
			os.Exit(1)
		}
	},
}

var (
	eventReference string
	eventMerchant  string
)

func publishTestEvent(eventType string) error {
	cfg, err := loadConfig(".")
	if err != nil {
		return err
	}
	log := logger.Configure(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	p := &payment.Payment{
		ID:               uuid.NewString(),
		PaymentReference: eventReference,
		MerchantID:       eventMerchant,
		Amount:           decimal.RequireFromString("100.00"),
		Currency:         payment.DefaultCurrency,
		CustomerEmail:    "customer@example.com",
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}

	var event *events.PaymentEvent
	switch eventType {
	case events.EventTypePaymentInitiated:
		p.Status = payment.StatusPending
		event = events.NewPaymentInitiatedEvent(p)
	case events.EventTypePaymentCompleted:
		p.Status = payment.StatusCompleted
		event = events.NewPaymentCompletedEvent(p)
	case events.EventTypePaymentFailed:
		p.Status = payment.StatusFailed
		event = events.NewPaymentFailedEvent(p)
	default:
		return fmt.Errorf("unknown event type %q, expected one of %v", eventType, events.PaymentEventTypes)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sink, err := publisher.New(ctx, cfg.Events, log)
	if err != nil {
		return err
	}
	defer sink.Close()

	log.Info("publishing sample event", "event_type", eventType, "event_id", event.EventID(), "sink", sink.Name())

	bus := events.NewEventBus(log)
	publisher.NewForwarder(sink, log).Register(bus)

	// Synchronous so the command reports sink failures.
	if err := bus.PublishSync(ctx, event); err != nil {
		return err
	}

	log.Info("sample event published successfully")
	return nil
}

func init() {
	publishEventCmd.Flags().StringVar(&eventReference, "reference", "PAY_0_SAMPLE0000", "Payment reference carried by the event")
	publishEventCmd.Flags().StringVar(&eventMerchant, "merchant", uuid.Nil.String(), "Merchant id carried by the event")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
