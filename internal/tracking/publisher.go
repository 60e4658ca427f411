package tracking

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/campaign-core/internal/domain"
)

// SQSAPI is the subset of *sqs.Client used by Publisher and Consumer.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, opts ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, opts ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// maxEventsPerMessage keeps message bodies well under the SQS size limit.
const maxEventsPerMessage = 200

// Publisher queues events on SQS for the worker to persist. It satisfies
// analytics.Sink; Append reports events queued, not events stored.
type Publisher struct {
	client   SQSAPI
	queueURL string
}

func NewPublisher(client SQSAPI, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL}
}

// Append sends events as JSON arrays of at most maxEventsPerMessage.
func (p *Publisher) Append(ctx context.Context, events []domain.EmailEvent) (int, error) {
	queued := 0
	for start := 0; start < len(events); start += maxEventsPerMessage {
		end := start + maxEventsPerMessage
		if end > len(events) {
			end = len(events)
		}
		body, err := json.Marshal(events[start:end])
		if err != nil {
			return queued, fmt.Errorf("marshal events: %w", err)
		}
		_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(p.queueURL),
			MessageBody: aws.String(string(body)),
		})
		if err != nil {
			return queued, fmt.Errorf("publish events to SQS: %w", err)
		}
		queued += end - start
	}
	return queued, nil
}
