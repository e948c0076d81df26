package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/kushsharma/parallel"
	"github.com/odpf/salt/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/raystack/scale/internal/errors"
	"github.com/raystack/scale/internal/telemetry"
)

const (
	DefaultBatchSize = 10
	DefaultWorkers   = 4

	metricMessagesSent      = "scale_messages_sent_total"
	metricMessagesProcessed = "scale_messages_processed_total"
	metricReceiveErrors     = "scale_messages_receive_errors_total"
	metricBatchSize         = "scale_messages_received_batch_size"

	resultAcked   = "acked"
	resultRetried = "retried"
	resultInvalid = "invalid"
)

var tracer = otel.Tracer("github.com/raystack/scale/core/messaging")

// Manager sends messages through a backend and executes the messages it
// receives from it.
type Manager struct {
	backend   Backend
	registry  *Registry
	logger    log.Logger
	batchSize int
	workers   int
}

func NewManager(backend Backend, registry *Registry, batchSize, workers int, logger log.Logger) *Manager {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Manager{
		backend:   backend,
		registry:  registry,
		logger:    logger,
		batchSize: batchSize,
		workers:   workers,
	}
}

// SendMessages encodes and sends messages, nothing is sent if any of them
// can not be encoded.
func (m *Manager) SendMessages(ctx context.Context, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	me := errors.NewMultiError("error encoding messages")
	bodies := make([][]byte, 0, len(messages))
	for _, msg := range messages {
		body, err := Encode(msg)
		if err != nil {
			me.Append(err)
			continue
		}
		bodies = append(bodies, body)
	}
	if err := errors.MultiToError(me); err != nil {
		return err
	}

	if err := m.backend.Send(ctx, bodies); err != nil {
		return errors.InternalError(EntityMessage, "unable to send messages through "+m.backend.Name(), err)
	}
	for _, msg := range messages {
		telemetry.NewCounter(metricMessagesSent, map[string]string{"type": msg.Type()}).Inc()
	}
	return nil
}

// ReceiveMessages processes one batch from the backend and returns the
// number of messages that were acknowledged.
func (m *Manager) ReceiveMessages(ctx context.Context) (int, error) {
	deliveries, err := m.backend.Receive(ctx, m.batchSize)
	if err != nil {
		telemetry.NewCounter(metricReceiveErrors, map[string]string{"backend": m.backend.Name()}).Inc()
		return 0, errors.InternalError(EntityMessage, "unable to receive messages from "+m.backend.Name(), err)
	}

	telemetry.NewGauge(metricBatchSize, map[string]string{"backend": m.backend.Name()}).Set(float64(len(deliveries)))

	runner := parallel.NewRunner(parallel.WithLimit(m.workers))
	for _, delivery := range deliveries {
		runner.Add(func(d Delivery) func() (interface{}, error) {
			return func() (interface{}, error) {
				return m.process(ctx, d), nil
			}
		}(delivery))
	}

	acked := 0
	for _, result := range runner.Run() {
		if ok, _ := result.Val.(bool); ok {
			acked++
		}
	}
	return acked, nil
}

// process executes a single delivery and settles it. A message is acked
// only after it succeeded and the messages it produced were sent.
func (m *Manager) process(ctx context.Context, d Delivery) bool {
	traceID := uuid.NewString()

	msg, err := m.registry.Decode(d.Body())
	if err != nil {
		m.logger.Error("unable to decode message [%s]: %s", traceID, err)
		telemetry.NewCounter(metricMessagesProcessed, map[string]string{"type": "unknown", "result": resultInvalid}).Inc()
		m.nack(ctx, d, traceID)
		return false
	}

	spanCtx, span := tracer.Start(ctx, "messaging.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("message.type", msg.Type()),
		attribute.String("message.trace_id", traceID),
	)

	start := time.Now()
	ok, next, err := m.execute(spanCtx, msg)
	if err == nil && ok {
		err = m.SendMessages(spanCtx, next)
	}
	if err != nil || !ok {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			m.logger.Error("message %s [%s] failed: %s", msg.Type(), traceID, err)
		} else {
			m.logger.Warn("message %s [%s] was not successful, leaving it for redelivery", msg.Type(), traceID)
		}
		telemetry.NewCounter(metricMessagesProcessed, map[string]string{"type": msg.Type(), "result": resultRetried}).Inc()
		m.nack(ctx, d, traceID)
		return false
	}

	if err := d.Ack(ctx); err != nil {
		m.logger.Error("unable to ack message %s [%s]: %s", msg.Type(), traceID, err)
		return false
	}
	telemetry.NewCounter(metricMessagesProcessed, map[string]string{"type": msg.Type(), "result": resultAcked}).Inc()
	m.logger.Debug("message %s [%s] processed in %s, %d new message(s)", msg.Type(), traceID, time.Since(start), len(next))
	return true
}

func (m *Manager) execute(ctx context.Context, msg Message) (ok bool, next []Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, next = false, nil
			err = errors.NewError(errors.ErrInternalError, EntityMessage,
				fmt.Sprintf("panic while executing %s: %v", msg.Type(), r))
		}
	}()
	return msg.Execute(ctx)
}

func (m *Manager) nack(ctx context.Context, d Delivery, traceID string) {
	if err := d.Nack(ctx); err != nil {
		m.logger.Error("unable to nack message [%s]: %s", traceID, err)
	}
}

// Run receives and processes messages until ctx is done. Receive errors are
// retried with an exponential backoff.
func (m *Manager) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0
	bo.MaxInterval = time.Minute

	for {
		if ctx.Err() != nil {
			return nil
		}

		err := backoff.RetryNotify(func() error {
			_, err := m.ReceiveMessages(ctx)
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
			m.logger.Warn("receiving messages failed, retrying in %s: %s", wait, err)
		})
		if err != nil && ctx.Err() == nil {
			return err
		}
		bo.Reset()
	}
}
