package webhook

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Poller long-polls an SQS queue fed by SES event publishing and ingests
// each message as an SES payload.
type Poller struct {
	client   sqsAPI
	queueURL string
	ingester *Ingester
	provider string
	errPause time.Duration
	log      *logger.Logger
}

// NewPoller creates a poller for queueURL.
func NewPoller(client *sqs.Client, queueURL string, ingester *Ingester) *Poller {
	return newPoller(client, queueURL, ingester)
}

func newPoller(client sqsAPI, queueURL string, ingester *Ingester) *Poller {
	return &Poller{
		client:   client,
		queueURL: queueURL,
		ingester: ingester,
		provider: "ses",
		errPause: 5 * time.Second,
		log:      logger.With("component", "webhook.sqs"),
	}
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info("sqs poller started", "queue", p.queueURL)
	for ctx.Err() == nil {
		if err := p.PollOnce(ctx, 20); err != nil {
			if ctx.Err() != nil {
				break
			}
			p.log.Error("sqs receive failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(p.errPause):
			}
		}
	}
	p.log.Info("sqs poller stopped")
}

// PollOnce receives one batch and processes it. Messages are deleted when
// they were applied or could never be parsed; messages that hit a store
// error stay on the queue and come back after the visibility timeout.
func (p *Poller) PollOnce(ctx context.Context, waitSeconds int32) error {
	out, err := p.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(p.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     waitSeconds,
	})
	if err != nil {
		return err
	}
	for _, msg := range out.Messages {
		sum, err := p.ingester.Ingest(ctx, p.provider, []byte(aws.ToString(msg.Body)))
		if err != nil && sum != nil {
			p.log.Error("sqs message not applied, leaving on queue",
				"sqs_message_id", aws.ToString(msg.MessageId), "error", err)
			continue
		}
		if _, err := p.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(p.queueURL),
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			p.log.Error("sqs delete failed", "sqs_message_id", aws.ToString(msg.MessageId), "error", err)
		}
	}
	return nil
}
