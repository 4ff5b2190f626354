// Package publisher forwards payment lifecycle events from the in-process
// bus to an external sink (Kafka, SQS or the log).
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/payment-reconciler/internal"
	"github.com/frahmantamala/payment-reconciler/internal/core/events"
)

const (
	AttrEventType        = "EventType"
	AttrPaymentReference = "PaymentReference"
	AttrMerchantID       = "MerchantId"
	AttrTraceID          = "TraceId"
)

// Message is the transport-neutral form of an event.
type Message struct {
	EventType  string
	Key        string
	Body       []byte
	Attributes map[string]string
}

type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Encode renders an event as the JSON body downstream consumers read, with
// routing attributes copied alongside.
func Encode(event events.Event) (Message, error) {
	body, err := json.Marshal(event.Payload())
	if err != nil {
		return Message{}, fmt.Errorf("encode %s event: %w", event.EventType(), err)
	}

	msg := Message{
		EventType:  event.EventType(),
		Key:        event.EventID(),
		Body:       body,
		Attributes: map[string]string{AttrEventType: event.EventType()},
	}

	if pe, ok := event.(*events.PaymentEvent); ok {
		msg.Key = pe.PaymentReference
		msg.Attributes[AttrPaymentReference] = pe.PaymentReference
		msg.Attributes[AttrMerchantID] = pe.MerchantID
		if pe.TraceID != "" {
			msg.Attributes[AttrTraceID] = pe.TraceID
		}
	}

	return msg, nil
}

// Forwarder is the bus subscriber that hands events to a Sink.
type Forwarder struct {
	sink   Sink
	logger *slog.Logger
}

func NewForwarder(sink Sink, logger *slog.Logger) *Forwarder {
	return &Forwarder{sink: sink, logger: logger}
}

// Register subscribes the forwarder to every payment lifecycle event.
func (f *Forwarder) Register(bus *events.EventBus) {
	for _, eventType := range events.PaymentEventTypes {
		bus.Subscribe(eventType, f.Handle)
	}
}

func (f *Forwarder) Handle(ctx context.Context, event events.Event) error {
	msg, err := Encode(event)
	if err != nil {
		return err
	}

	if err := f.sink.Send(ctx, msg); err != nil {
		return fmt.Errorf("%s sink: %w", f.sink.Name(), err)
	}

	f.logger.Info("payment event forwarded",
		"sink", f.sink.Name(),
		"event_type", msg.EventType,
		"event_id", event.EventID(),
		"key", msg.Key)
	return nil
}

// New builds the sink selected by events.driver.
func New(ctx context.Context, cfg internal.EventsConfig, logger *slog.Logger) (Sink, error) {
	switch cfg.Driver {
	case "", internal.EventsDriverLog:
		return NewLogSink(logger), nil
	case internal.EventsDriverKafka:
		return NewKafkaSink(cfg.Kafka, logger)
	case internal.EventsDriverSQS:
		client, err := NewSQSClient(ctx, cfg.SQS)
		if err != nil {
			return nil, err
		}
		return NewSQSSink(client, cfg.SQS.QueueURL, logger), nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}

// LogSink writes events to the structured log; used in development.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return internal.EventsDriverLog }

func (s *LogSink) Send(ctx context.Context, msg Message) error {
	s.logger.Info("payment event",
		"event_type", msg.EventType,
		"key", msg.Key,
		"attributes", msg.Attributes,
		"body", string(msg.Body))
	return nil
}

func (s *LogSink) Close() error { return nil }
