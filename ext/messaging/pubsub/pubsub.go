package pubsub

import (
	"context"
	"time"

	"github.com/odpf/salt/log"
	"gocloud.dev/pubsub"
	_ "gocloud.dev/pubsub/mempubsub" // mem:// urls

	"github.com/raystack/scale/core/messaging"
	"github.com/raystack/scale/internal/errors"
)

const (
	backendName = "pubsub"

	DefaultWaitTime = time.Second * 20
	lingerTime      = time.Millisecond * 50
)

type Config struct {
	TopicURL        string
	SubscriptionURL string
	WaitTime        time.Duration
}

// Backend sends to a portable pubsub topic and receives from a subscription
// of it. Both are opened from URLs so any registered driver works.
type Backend struct {
	topic        *pubsub.Topic
	subscription *pubsub.Subscription
	waitTime     time.Duration
	logger       log.Logger
}

// NewBackend opens the topic before the subscription, a mem:// subscription
// only sees messages sent after it was opened.
func NewBackend(ctx context.Context, conf Config, logger log.Logger) (*Backend, error) {
	if conf.TopicURL == "" || conf.SubscriptionURL == "" {
		return nil, errors.InvalidArgument(messaging.EntityMessage, "pubsub topic and subscription urls are required")
	}

	topic, err := pubsub.OpenTopic(ctx, conf.TopicURL)
	if err != nil {
		return nil, errors.InternalError(messaging.EntityMessage, "unable to open topic "+conf.TopicURL, err)
	}
	subscription, err := pubsub.OpenSubscription(ctx, conf.SubscriptionURL)
	if err != nil {
		if shutdownErr := topic.Shutdown(ctx); shutdownErr != nil {
			logger.Error("unable to shutdown topic %s: %s", conf.TopicURL, shutdownErr)
		}
		return nil, errors.InternalError(messaging.EntityMessage, "unable to open subscription "+conf.SubscriptionURL, err)
	}

	waitTime := conf.WaitTime
	if waitTime <= 0 {
		waitTime = DefaultWaitTime
	}
	return &Backend{
		topic:        topic,
		subscription: subscription,
		waitTime:     waitTime,
		logger:       logger,
	}, nil
}

func (*Backend) Name() string {
	return backendName
}

func (b *Backend) Send(ctx context.Context, bodies [][]byte) error {
	me := errors.NewMultiError("error sending messages to pubsub")
	for _, body := range bodies {
		me.Append(b.topic.Send(ctx, &pubsub.Message{Body: body}))
	}
	return errors.MultiToError(me)
}

// Receive blocks up to the wait time for the first message, further
// messages are only taken while they arrive promptly.
func (b *Backend) Receive(ctx context.Context, max int) ([]messaging.Delivery, error) {
	var deliveries []messaging.Delivery
	wait := b.waitTime
	for len(deliveries) < max {
		receiveCtx, cancel := context.WithTimeout(ctx, wait)
		msg, err := b.subscription.Receive(receiveCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return deliveries, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return deliveries, nil
			}
			if len(deliveries) > 0 {
				b.logger.Warn("receiving pubsub message failed, returning partial batch: %s", err)
				return deliveries, nil
			}
			return nil, err
		}

		deliveries = append(deliveries, &delivery{msg: msg})
		wait = lingerTime
	}
	return deliveries, nil
}

func (b *Backend) Close() error {
	ctx := context.Background()
	me := errors.NewMultiError("error closing pubsub backend")
	me.Append(b.subscription.Shutdown(ctx))
	me.Append(b.topic.Shutdown(ctx))
	return errors.MultiToError(me)
}

type delivery struct {
	msg *pubsub.Message
}

func (d *delivery) Body() []byte {
	return d.msg.Body
}

func (d *delivery) Ack(context.Context) error {
	d.msg.Ack()
	return nil
}

// Nack asks for an immediate redelivery when the driver supports it,
// otherwise the message is redelivered after the driver's ack deadline.
func (d *delivery) Nack(context.Context) error {
	if d.msg.Nackable() {
		d.msg.Nack()
	}
	return nil
}
