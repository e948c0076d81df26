package server

import (
	"context"
	"fmt"

	"github.com/odpf/salt/log"

	"github.com/raystack/scale/config"
	"github.com/raystack/scale/core/messaging"
	"github.com/raystack/scale/ext/messaging/kafka"
	"github.com/raystack/scale/ext/messaging/pubsub"
	"github.com/raystack/scale/ext/messaging/sqs"
)

// NewBackend opens the configured message backend.
func NewBackend(ctx context.Context, conf config.MessagingConfig, logger log.Logger) (messaging.Backend, error) {
	switch conf.Backend {
	case config.BackendSQS:
		b, err := sqs.NewBackend(ctx, sqs.Config{
			QueueName:         conf.SQS.QueueName,
			Region:            conf.SQS.Region,
			VisibilityTimeout: conf.SQS.VisibilityTimeout,
			WaitTime:          conf.SQS.WaitTime,
		}, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BackendKafka:
		b, err := kafka.NewBackend(kafka.Config{
			Brokers:   conf.Kafka.BrokerList(),
			Topic:     conf.Kafka.Topic,
			GroupID:   conf.Kafka.GroupID,
			BatchSize: conf.Kafka.BatchSize,
			WaitTime:  conf.Kafka.WaitTime,
		}, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BackendPubSub:
		b, err := pubsub.NewBackend(ctx, pubsub.Config{
			TopicURL:        conf.PubSub.TopicURL,
			SubscriptionURL: conf.PubSub.SubscriptionURL,
			WaitTime:        conf.PubSub.WaitTime,
		}, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown message backend %q", conf.Backend)
}
