package tracking

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/campaign-core/internal/domain"
	"github.com/ignite/campaign-core/internal/pkg/logger"
	"github.com/ignite/campaign-core/internal/service/analytics"
)

// Consumer drains queued event batches into a Sink. A message is deleted
// once its events are stored or when it can never be decoded.
type Consumer struct {
	client   SQSAPI
	queueURL string
	sink     analytics.Sink
	log      *logger.Logger

	waitSeconds  int32
	errorBackoff time.Duration

	received int64
	stored   int64
	failed   int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewConsumer(client SQSAPI, queueURL string, sink analytics.Sink) *Consumer {
	return &Consumer{
		client:       client,
		queueURL:     queueURL,
		sink:         sink,
		log:          logger.Default().With("component", "sqs_consumer"),
		waitSeconds:  20,
		errorBackoff: 5 * time.Second,
	}
}

func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.log.Info("started", "queue", c.queueURL)
	c.wg.Add(1)
	go c.poll(ctx)
}

func (c *Consumer) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.wg.Wait()
	c.log.Info("stopped",
		"received", atomic.LoadInt64(&c.received),
		"stored", atomic.LoadInt64(&c.stored),
		"failed", atomic.LoadInt64(&c.failed))
}

func (c *Consumer) poll(ctx context.Context) {
	defer c.wg.Done()
	for ctx.Err() == nil {
		if _, err := c.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("receive failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.errorBackoff):
			}
		}
	}
}

// PollOnce receives one batch of messages and processes it. It returns the
// number of events stored.
func (c *Consumer) PollOnce(ctx context.Context) (int, error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     c.waitSeconds,
	})
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, msg := range out.Messages {
		atomic.AddInt64(&c.received, 1)
		var events []domain.EmailEvent
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &events); err != nil {
			atomic.AddInt64(&c.failed, 1)
			c.log.Warn("dropping undecodable message", "message_id", aws.ToString(msg.MessageId), "error", err)
			c.deleteMessage(ctx, msg.ReceiptHandle)
			continue
		}
		prepared, err := analytics.PrepareEvents(events)
		if err != nil {
			atomic.AddInt64(&c.failed, 1)
			c.log.Warn("dropping invalid message", "message_id", aws.ToString(msg.MessageId), "error", err)
			c.deleteMessage(ctx, msg.ReceiptHandle)
			continue
		}

		n, err := c.sink.Append(ctx, prepared)
		if err != nil {
			// Left on the queue; SQS redelivers after the visibility timeout.
			atomic.AddInt64(&c.failed, 1)
			c.log.Error("store events failed", "message_id", aws.ToString(msg.MessageId), "error", err)
			continue
		}
		stored += n
		atomic.AddInt64(&c.stored, int64(n))
		c.deleteMessage(ctx, msg.ReceiptHandle)
	}
	return stored, nil
}

func (c *Consumer) deleteMessage(ctx context.Context, handle *string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	})
	if err != nil {
		c.log.Warn("delete message failed", "error", err)
	}
}

// Stats returns consumer counters.
func (c *Consumer) Stats() map[string]int64 {
	return map[string]int64{
		"received": atomic.LoadInt64(&c.received),
		"stored":   atomic.LoadInt64(&c.stored),
		"failed":   atomic.LoadInt64(&c.failed),
	}
}
