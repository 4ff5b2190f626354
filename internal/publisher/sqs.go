package publisher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/frahmantamala/payment-reconciler/internal"
)

// SQSAPI is the slice of the SQS client the sink uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

func NewSQSClient(ctx context.Context, cfg internal.SQSConfig) (*sqs.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

type SQSSink struct {
	client   SQSAPI
	queueURL string
	logger   *slog.Logger
}

func NewSQSSink(client SQSAPI, queueURL string, logger *slog.Logger) *SQSSink {
	return &SQSSink{client: client, queueURL: queueURL, logger: logger}
}

func (s *SQSSink) Name() string { return internal.EventsDriverSQS }

// Send drops the message with a warning when no queue is configured.
func (s *SQSSink) Send(ctx context.Context, msg Message) error {
	if s.queueURL == "" {
		s.logger.Warn("sqs queue url not configured, dropping event", "event_type", msg.EventType)
		return nil
	}

	attributes := make(map[string]sqstypes.MessageAttributeValue, len(msg.Attributes))
	for k, v := range msg.Attributes {
		attributes[k] = sqstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	out, err := s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(s.queueURL),
		MessageBody:       aws.String(string(msg.Body)),
		MessageAttributes: attributes,
	})
	if err != nil {
		return fmt.Errorf("send %s to sqs: %w", msg.EventType, err)
	}

	s.logger.Debug("sqs message sent", "event_type", msg.EventType, "message_id", aws.ToString(out.MessageId))
	return nil
}

func (s *SQSSink) Close() error { return nil }
