package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/wolfman30/listing-lead-assistant/internal/leads"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends lead events to an SQS queue.
type SQSPublisher struct {
	client   sqsAPI
	queueURL string
}

// NewSQSPublisher creates a publisher for queueURL.
func NewSQSPublisher(client sqsAPI, queueURL string) *SQSPublisher {
	if client == nil {
		panic("events: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("events: SQS queueURL cannot be empty")
	}
	return &SQSPublisher{client: client, queueURL: queueURL}
}

// PublishLeadSubmitted implements leads.Publisher.
func (p *SQSPublisher) PublishLeadSubmitted(ctx context.Context, lead *leads.Lead) error {
	body, err := json.Marshal(NewLeadSubmitted(lead))
	if err != nil {
		return fmt.Errorf("events: marshal lead event: %w", err)
	}
	return p.send(ctx, TypeLeadSubmitted, string(body))
}

// Handle implements DeliveryHandler for outbox entries.
func (p *SQSPublisher) Handle(ctx context.Context, entry OutboxEntry) error {
	return p.send(ctx, entry.Type, string(entry.Payload))
}

func (p *SQSPublisher) send(ctx context.Context, eventType, body string) error {
	_, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(body),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(eventType)},
		},
	})
	if err != nil {
		return fmt.Errorf("events: failed to send SQS message: %w", err)
	}
	return nil
}
