// Package bootstrap assembles the shared service skeleton: broker wiring,
// store connection and ordered shutdown.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"ratefeed/internal/broker"
	"ratefeed/internal/config"
	"ratefeed/internal/logger"
)

// Base carries the pieces a pipeline service starts from. Services embed it
// and hang their own components off their App struct.
type Base struct {
	Config   *config.Config
	Logger   logger.Logger
	Producer broker.Producer
	Consumer broker.Consumer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{Config: cfg, Logger: log}
}

// InitBroker builds the producer and consumer pair for the configured broker
// type and stamps both with the service name for logs and metrics.
func (b *Base) InitBroker(serviceName string) error {
	producer, err := broker.NewProducer(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}

	consumer, err := broker.NewConsumer(b.Config.Broker, b.Logger)
	if err != nil {
		producer.Close()
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	if serviceName != "" {
		producer.SetServiceName(serviceName)
		consumer.SetServiceName(serviceName)
	}

	b.Producer = producer
	b.Consumer = consumer
	return nil
}

// ShutdownBroker closes the consumer before the producer so the receive
// loop stops feeding the pipeline before its transport goes away.
func (b *Base) ShutdownBroker() error {
	var errs []error

	if b.Consumer != nil {
		if err := b.Consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer close error: %w", err))
		}
	}
	if b.Producer != nil {
		if err := b.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Shutdown tears down the broker, then runs the service's own teardown and
// reports everything that failed.
func (b *Base) Shutdown(ctx context.Context, extra func(ctx context.Context) error) error {
	b.Logger.Info("Shutting down application...")

	errs := []error{b.ShutdownBroker()}
	if extra != nil {
		errs = append(errs, extra(ctx))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown errors: %w", err)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
