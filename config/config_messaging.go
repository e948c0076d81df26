package config

import (
	"strings"
	"time"
)

const (
	BackendSQS    = "sqs"
	BackendKafka  = "kafka"
	BackendPubSub = "pubsub"
)

type MessagingConfig struct {
	Backend   string       `mapstructure:"backend" default:"pubsub"`
	BatchSize int          `mapstructure:"batch_size" default:"10"` // messages received per batch
	Workers   int          `mapstructure:"workers" default:"4"`     // messages of a batch executed concurrently
	SQS       SQSConfig    `mapstructure:"sqs"`
	Kafka     KafkaConfig  `mapstructure:"kafka"`
	PubSub    PubSubConfig `mapstructure:"pubsub"`
}

type SQSConfig struct {
	QueueName         string        `mapstructure:"queue_name"`
	Region            string        `mapstructure:"region" default:"us-east-1"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout" default:"30s"`
	WaitTime          time.Duration `mapstructure:"wait_time" default:"20s"`
}

type KafkaConfig struct {
	Brokers   string        `mapstructure:"brokers"` // comma separated kafka brokers
	Topic     string        `mapstructure:"topic" default:"scale"`
	GroupID   string        `mapstructure:"group_id" default:"scale"`
	BatchSize int           `mapstructure:"batch_size" default:"100"` // messages buffered before being sent to a partition
	WaitTime  time.Duration `mapstructure:"wait_time" default:"20s"`
}

func (k KafkaConfig) BrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

type PubSubConfig struct {
	TopicURL        string        `mapstructure:"topic_url" default:"mem://scale"`
	SubscriptionURL string        `mapstructure:"subscription_url" default:"mem://scale"`
	WaitTime        time.Duration `mapstructure:"wait_time" default:"20s"`
}
