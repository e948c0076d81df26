package sqs

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/odpf/salt/log"

	"github.com/raystack/scale/core/messaging"
	"github.com/raystack/scale/internal/errors"
)

const (
	backendName = "sqs"

	// maxBatch is the SQS limit for batch sends and receives.
	maxBatch = 10

	DefaultVisibilityTimeout = time.Second * 30
	DefaultWaitTime          = time.Second * 20
)

type Config struct {
	QueueName         string
	Region            string
	VisibilityTimeout time.Duration
	WaitTime          time.Duration
}

// Backend uses an SQS queue. A message that is not acked becomes visible
// again once its visibility timeout expires.
type Backend struct {
	client            sqsiface.SQSAPI
	queueURL          string
	visibilityTimeout time.Duration
	waitTime          time.Duration
	logger            log.Logger
}

func NewBackend(ctx context.Context, conf Config, logger log.Logger) (*Backend, error) {
	if conf.QueueName == "" {
		return nil, errors.InvalidArgument(messaging.EntityMessage, "sqs queue name is empty")
	}

	sess, err := session.NewSession(&aws.Config{Region: aws.String(conf.Region)})
	if err != nil {
		return nil, errors.InternalError(messaging.EntityMessage, "unable to create aws session", err)
	}
	return New(ctx, sqs.New(sess), conf, logger)
}

// New resolves the queue URL of conf.QueueName with client.
func New(ctx context.Context, client sqsiface.SQSAPI, conf Config, logger log.Logger) (*Backend, error) {
	out, err := client.GetQueueUrlWithContext(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(conf.QueueName)})
	if err != nil {
		return nil, errors.InternalError(messaging.EntityMessage, "unable to get url of queue "+conf.QueueName, err)
	}

	visibilityTimeout := conf.VisibilityTimeout
	if visibilityTimeout <= 0 {
		visibilityTimeout = DefaultVisibilityTimeout
	}
	waitTime := conf.WaitTime
	if waitTime <= 0 {
		waitTime = DefaultWaitTime
	}

	return &Backend{
		client:            client,
		queueURL:          aws.StringValue(out.QueueUrl),
		visibilityTimeout: visibilityTimeout,
		waitTime:          waitTime,
		logger:            logger,
	}, nil
}

func (*Backend) Name() string {
	return backendName
}

func (b *Backend) Send(ctx context.Context, bodies [][]byte) error {
	var result error
	for start := 0; start < len(bodies); start += maxBatch {
		end := start + maxBatch
		if end > len(bodies) {
			end = len(bodies)
		}
		if err := b.sendBatch(ctx, bodies[start:end]); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

func (b *Backend) sendBatch(ctx context.Context, bodies [][]byte) error {
	entries := make([]*sqs.SendMessageBatchRequestEntry, len(bodies))
	for i, body := range bodies {
		entries[i] = &sqs.SendMessageBatchRequestEntry{
			Id:          aws.String(uuid.NewString()),
			MessageBody: aws.String(string(body)),
		}
	}

	out, err := b.client.SendMessageBatchWithContext(ctx, &sqs.SendMessageBatchInput{
		QueueUrl: aws.String(b.queueURL),
		Entries:  entries,
	})
	if err != nil {
		return err
	}

	var result error
	for _, failed := range out.Failed {
		result = multierror.Append(result, fmt.Errorf("message %s was not sent: %s: %s",
			aws.StringValue(failed.Id), aws.StringValue(failed.Code), aws.StringValue(failed.Message)))
	}
	return result
}

func (b *Backend) Receive(ctx context.Context, max int) ([]messaging.Delivery, error) {
	if max > maxBatch {
		max = maxBatch
	}
	if max <= 0 {
		max = 1
	}

	out, err := b.client.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(b.queueURL),
		MaxNumberOfMessages: aws.Int64(int64(max)),
		VisibilityTimeout:   aws.Int64(int64(b.visibilityTimeout.Seconds())),
		WaitTimeSeconds:     aws.Int64(int64(b.waitTime.Seconds())),
	})
	if err != nil {
		return nil, err
	}

	deliveries := make([]messaging.Delivery, len(out.Messages))
	for i, msg := range out.Messages {
		deliveries[i] = &delivery{backend: b, msg: msg}
	}
	return deliveries, nil
}

func (*Backend) Close() error {
	return nil
}

type delivery struct {
	backend *Backend
	msg     *sqs.Message
}

func (d *delivery) Body() []byte {
	return []byte(aws.StringValue(d.msg.Body))
}

func (d *delivery) Ack(ctx context.Context) error {
	_, err := d.backend.client.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(d.backend.queueURL),
		ReceiptHandle: d.msg.ReceiptHandle,
	})
	return err
}

// Nack leaves the message in flight until its visibility timeout expires.
func (*delivery) Nack(context.Context) error {
	return nil
}
