package config

import (
	"reflect"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Validate validate the config as an input. If not valid, it returns error
func Validate(conf *Config) error {
	messaging := &conf.Messaging
	return validation.ValidateStruct(conf,
		nestedFields(&conf.Log,
			validation.Field(&conf.Log.Level, validation.In(
				LogLevelDebug,
				LogLevelInfo,
				LogLevelWarning,
				LogLevelError,
				LogLevelFatal,
			)),
			validation.Field(&conf.Log.Format, validation.In(LogFormatPlain, LogFormatJSON)),
		),
		nestedFields(messaging,
			validation.Field(&messaging.Backend, validation.Required, validation.In(BackendSQS, BackendKafka, BackendPubSub)),
			validation.Field(&messaging.BatchSize, validation.Required, validation.Min(1)),
			validation.Field(&messaging.Workers, validation.Required, validation.Min(1)),
			nestedFields(&messaging.SQS,
				validation.Field(&messaging.SQS.QueueName, validation.When(messaging.Backend == BackendSQS, validation.Required)),
				validation.Field(&messaging.SQS.Region, validation.When(messaging.Backend == BackendSQS, validation.Required)),
			),
			nestedFields(&messaging.Kafka,
				validation.Field(&messaging.Kafka.Brokers, validation.When(messaging.Backend == BackendKafka, validation.Required)),
				validation.Field(&messaging.Kafka.Topic, validation.When(messaging.Backend == BackendKafka, validation.Required)),
				validation.Field(&messaging.Kafka.GroupID, validation.When(messaging.Backend == BackendKafka, validation.Required)),
			),
			nestedFields(&messaging.PubSub,
				validation.Field(&messaging.PubSub.TopicURL, validation.When(messaging.Backend == BackendPubSub, validation.Required)),
				validation.Field(&messaging.PubSub.SubscriptionURL, validation.When(messaging.Backend == BackendPubSub, validation.Required)),
			),
		),
		nestedFields(&conf.DB,
			validation.Field(&conf.DB.MaxIdleConnection, validation.Min(0)),
			validation.Field(&conf.DB.MaxOpenConnection, validation.Min(0)),
		),
	)
}

// ozzo-validation helper for nested validation struct
// https://github.com/go-ozzo/ozzo-validation/issues/136
func nestedFields(target interface{}, fieldRules ...*validation.FieldRules) *validation.FieldRules {
	return validation.Field(target, validation.By(func(value interface{}) error {
		valueV := reflect.Indirect(reflect.ValueOf(value))
		if valueV.CanAddr() {
			addr := valueV.Addr().Interface()
			return validation.ValidateStruct(addr, fieldRules...)
		}
		return validation.ValidateStruct(target, fieldRules...)
	}))
}
