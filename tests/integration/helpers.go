package integration

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"ratefeed/internal/config"
	"ratefeed/internal/logger"
	"ratefeed/pkg/models"
)

const (
	containerStartupTimeout = 60 * time.Second
	timestampDelay          = 10 * time.Millisecond
	messageWaitTimeout      = 30 * time.Second
	pollInterval            = 250 * time.Millisecond
)

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestSnapshot(base string) *models.RateSnapshot {
	return &models.RateSnapshot{
		Base:            base,
		Date:            "2025-06-26",
		TimeLastUpdated: 1719360000,
		Rates: map[string]float64{
			"EUR": 0.85,
			"GBP": 0.73,
		},
	}
}

func createTestBrokerConfig(brokers []string, topic string) config.BrokerConfig {
	return config.BrokerConfig{
		Type: "kafka",
		Kafka: config.KafkaConfig{
			Brokers: brokers,
			GroupID: fmt.Sprintf("ratefeed-test-%s", uuid.NewString()),
			Topic:   topic,
			Retry: config.RetryConfig{
				MaxAttempts:     5,
				InitialInterval: 10 * time.Millisecond,
				MaxInterval:     50 * time.Millisecond,
				Multiplier:      2.0,
			},
		},
	}
}
