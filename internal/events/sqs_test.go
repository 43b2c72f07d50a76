package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSPublisherPublishLeadSubmitted(t *testing.T) {
	client := &fakeSQS{}
	p := NewSQSPublisher(client, "https://sqs.local/leads")

	require.NoError(t, p.PublishLeadSubmitted(context.Background(), sampleLead()))
	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "https://sqs.local/leads", aws.ToString(in.QueueUrl))
	assert.Equal(t, TypeLeadSubmitted, aws.ToString(in.MessageAttributes["event_type"].StringValue))

	var evt LeadSubmittedV1
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(in.MessageBody)), &evt))
	assert.Equal(t, "Asha", evt.Name)
}

func TestSQSPublisherHandleError(t *testing.T) {
	client := &fakeSQS{err: errors.New("throttled")}
	p := NewSQSPublisher(client, "q")
	err := p.Handle(context.Background(), OutboxEntry{Type: TypeLeadSubmitted, Payload: []byte(`{}`)})
	assert.ErrorContains(t, err, "throttled")
}

func TestNewSQSPublisherPanics(t *testing.T) {
	assert.Panics(t, func() { NewSQSPublisher(nil, "q") })
	assert.Panics(t, func() { NewSQSPublisher(&fakeSQS{}, "") })
}
