package publisher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/frahmantamala/payment-reconciler/internal"
)

type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

func NewKafkaSink(cfg internal.KafkaConfig, logger *slog.Logger) (*KafkaSink, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	if cfg.ClientID != "" {
		config.ClientID = cfg.ClientID
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	logger.Info("kafka producer connected", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return NewKafkaSinkWithProducer(producer, cfg.Topic, logger), nil
}

func NewKafkaSinkWithProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic, logger: logger}
}

func (s *KafkaSink) Name() string { return internal.EventsDriverKafka }

// Send keys messages by payment reference so a payment's events stay
// ordered within one partition.
func (s *KafkaSink) Send(ctx context.Context, msg Message) error {
	headers := make([]sarama.RecordHeader, 0, len(msg.Attributes))
	for k, v := range msg.Attributes {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	partition, offset, err := s.producer.SendMessage(&sarama.ProducerMessage{
		Topic:   s.topic,
		Key:     sarama.StringEncoder(msg.Key),
		Value:   sarama.ByteEncoder(msg.Body),
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("send %s to %s: %w", msg.EventType, s.topic, err)
	}

	s.logger.Debug("kafka message sent",
		"topic", s.topic,
		"partition", partition,
		"offset", offset,
		"event_type", msg.EventType)
	return nil
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
