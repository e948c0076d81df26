package kafka

import (
	"context"
	"time"

	"github.com/odpf/salt/log"
	"github.com/segmentio/kafka-go"

	"github.com/raystack/scale/core/messaging"
	"github.com/raystack/scale/internal/errors"
	"github.com/raystack/scale/internal/telemetry"
)

const (
	backendName = "kafka"

	writeTimeout = time.Second * 3

	// DefaultWaitTime bounds how long Receive blocks for the first message.
	DefaultWaitTime = time.Second * 20
	// lingerTime bounds the wait for every further message of a batch.
	lingerTime = time.Millisecond * 100

	metricQueued    = "scale_kafka_messages_queued_total"
	metricDiscarded = "scale_kafka_messages_discarded_total"
	metricRequeued  = "scale_kafka_messages_requeued_total"
)

type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers   []string
	Topic     string
	GroupID   string
	BatchSize int
	WaitTime  time.Duration
}

// Backend writes message bodies to a topic and reads them back as a member
// of a consumer group. Commits are positional, so a nacked delivery is
// written to the topic again before its offset is committed.
type Backend struct {
	writer   Writer
	reader   Reader
	waitTime time.Duration
	logger   log.Logger
}

func NewBackend(conf Config, logger log.Logger) (*Backend, error) {
	if len(conf.Brokers) == 0 {
		return nil, errors.InvalidArgument(messaging.EntityMessage, "kafka brokers are empty")
	}
	if conf.Topic == "" || conf.GroupID == "" {
		return nil, errors.InvalidArgument(messaging.EntityMessage, "kafka topic and group id are required")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(conf.Brokers...),
		Topic:                  conf.Topic,
		BatchSize:              conf.BatchSize,
		AllowAutoTopicCreation: true,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            1,
		WriteTimeout:           writeTimeout,
		Logger:                 kafka.LoggerFunc(logger.Debug),
		ErrorLogger:            kafka.LoggerFunc(logger.Error),
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     conf.Brokers,
		GroupID:     conf.GroupID,
		Topic:       conf.Topic,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
		Logger:      kafka.LoggerFunc(logger.Debug),
		ErrorLogger: kafka.LoggerFunc(logger.Error),
	})

	return New(writer, reader, conf.WaitTime, logger), nil
}

func New(writer Writer, reader Reader, waitTime time.Duration, logger log.Logger) *Backend {
	if waitTime <= 0 {
		waitTime = DefaultWaitTime
	}
	return &Backend{
		writer:   writer,
		reader:   reader,
		waitTime: waitTime,
		logger:   logger,
	}
}

func (*Backend) Name() string {
	return backendName
}

func (b *Backend) Send(ctx context.Context, bodies [][]byte) error {
	if len(bodies) == 0 {
		return nil
	}

	kafkaMessages := make([]kafka.Message, len(bodies))
	for i, body := range bodies {
		kafkaMessages[i] = kafka.Message{Value: body}
	}
	return b.send(ctx, kafkaMessages)
}

func (b *Backend) send(ctx context.Context, messages []kafka.Message) error {
	err := b.writer.WriteMessages(ctx, messages...)
	if err != nil {
		var messageSizeError kafka.MessageTooLargeError
		if errors.As(err, &messageSizeError) {
			b.logger.Error("received too large message error for a message, trying remaining")
			b.logger.Error("discarded message: %s", string(messageSizeError.Message.Value))
			telemetry.NewCounter(metricDiscarded, nil).Inc()

			if len(messageSizeError.Remaining) == 0 {
				return nil
			}
			return b.send(ctx, messageSizeError.Remaining)
		}

		return err
	}

	telemetry.NewCounter(metricQueued, nil).Add(float64(len(messages)))
	return nil
}

// Receive waits up to the configured wait time for the first message and
// then keeps filling the batch while messages arrive promptly.
func (b *Backend) Receive(ctx context.Context, max int) ([]messaging.Delivery, error) {
	var deliveries []messaging.Delivery
	wait := b.waitTime
	for len(deliveries) < max {
		fetchCtx, cancel := context.WithTimeout(ctx, wait)
		msg, err := b.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return deliveries, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return deliveries, nil
			}
			if len(deliveries) > 0 {
				b.logger.Warn("fetching kafka message failed, returning partial batch: %s", err)
				return deliveries, nil
			}
			return nil, err
		}

		deliveries = append(deliveries, &delivery{backend: b, msg: msg})
		wait = lingerTime
	}
	return deliveries, nil
}

func (b *Backend) Close() error {
	me := errors.NewMultiError("error closing kafka backend")
	me.Append(b.writer.Close())
	me.Append(b.reader.Close())
	return errors.MultiToError(me)
}

type delivery struct {
	backend *Backend
	msg     kafka.Message
}

func (d *delivery) Body() []byte {
	return d.msg.Value
}

func (d *delivery) Ack(ctx context.Context) error {
	return d.backend.reader.CommitMessages(ctx, d.msg)
}

// Nack requeues the body at the end of the topic and then commits the
// original. Without the commit a later ack in the partition skips it anyway.
func (d *delivery) Nack(ctx context.Context) error {
	if err := d.backend.send(ctx, []kafka.Message{{Value: d.msg.Value}}); err != nil {
		return errors.InternalError(messaging.EntityMessage, "unable to requeue kafka message", err)
	}
	telemetry.NewCounter(metricRequeued, nil).Inc()
	return d.backend.reader.CommitMessages(ctx, d.msg)
}
