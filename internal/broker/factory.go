package broker

import (
	"fmt"

	"ratefeed/internal/config"
	"ratefeed/internal/logger"
	pkgerrors "ratefeed/pkg/errors"
)

// NewProducer builds the configured producer. With publish retry enabled the
// Kafka producer is wrapped in the retrying decorator, callers always publish
// through a single Producer value.
func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	switch cfg.Type {
	case "kafka":
		var producer Producer = NewKafkaProducer(cfg.Kafka, log)
		if cfg.Kafka.PublishRetry.Enabled {
			producer = NewRetryingProducer(producer, cfg.Kafka.PublishRetry, log)
		}
		return producer, nil
	}
	return nil, unknownBrokerType(cfg.Type)
}

func NewConsumer(cfg config.BrokerConfig, log logger.Logger) (Consumer, error) {
	switch cfg.Type {
	case "kafka":
		return NewKafkaConsumer(cfg.Kafka, log), nil
	}
	return nil, unknownBrokerType(cfg.Type)
}

// Validation normally rejects unsupported types before the factory runs, this
// covers configs constructed in code.
func unknownBrokerType(name string) error {
	return pkgerrors.ErrConfig.WithDetail("message", fmt.Sprintf("unknown broker type %q", name))
}
