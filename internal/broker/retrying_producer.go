package broker

import (
	"context"
	"time"

	"ratefeed/internal/config"
	"ratefeed/internal/logger"
	"ratefeed/pkg/metrics"
	"ratefeed/pkg/models"
	"ratefeed/pkg/retry"
)

// RetryingProducer decorates a Producer with bounded retries for retryable
// publish failures. A retried publish can deliver more than once, downstream
// consumers must tolerate duplicates.
type RetryingProducer struct {
	inner  Producer
	policy retry.Policy
	logger logger.Logger
}

func NewRetryingProducer(inner Producer, cfg config.PublishRetryConfig, log logger.Logger) *RetryingProducer {
	policy := retry.DefaultPolicy()
	policy.MaxElapsedTime = 0

	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialInterval > 0 {
		policy.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		policy.MaxInterval = cfg.MaxInterval
	}
	if cfg.Multiplier > 0 {
		policy.Multiplier = cfg.Multiplier
	}

	return &RetryingProducer{
		inner:  inner,
		policy: policy,
		logger: log,
	}
}

func (p *RetryingProducer) SetServiceName(name string) {
	p.inner.SetServiceName(name)
}

func (p *RetryingProducer) Publish(ctx context.Context, topic string, snapshot *models.RateSnapshot) (DeliveryResult, error) {
	var result DeliveryResult

	err := retry.RetryWithCallback(ctx, p.policy, func() error {
		var publishErr error
		result, publishErr = p.inner.Publish(ctx, topic, snapshot)
		return publishErr
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(topic).Inc()
		p.logger.WarnwCtx(ctx, "Retrying snapshot publish",
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
			"topic", topic,
			"snapshot_key", snapshot.IdentityKey(),
		)
	})
	if err != nil {
		return DeliveryResult{}, err
	}

	return result, nil
}

func (p *RetryingProducer) Close() error {
	return p.inner.Close()
}
