package rates

import (
	"context"

	"ratefeed/internal/broker"
	"ratefeed/internal/logger"
)

// Trigger performs the one-shot fetch-and-publish at startup. It shares no
// state with the consume path, a failed trigger leaves the subscriber
// untouched.
type Trigger struct {
	source   Source
	producer broker.Producer
	topic    string
	logger   logger.Logger
}

func NewTrigger(source Source, producer broker.Producer, topic string, log logger.Logger) *Trigger {
	return &Trigger{
		source:   source,
		producer: producer,
		topic:    topic,
		logger:   log,
	}
}

// Run fetches the current snapshot and publishes it. Every failure is logged
// here; the caller decides whether it is fatal, at service startup it is not.
func (t *Trigger) Run(ctx context.Context) error {
	snapshot, err := t.source.Fetch(ctx)
	if err != nil {
		t.logger.ErrorwCtx(ctx, "Startup fetch failed, nothing published",
			"error", err,
			"topic", t.topic,
		)
		return err
	}

	result, err := t.producer.Publish(ctx, t.topic, snapshot)
	if err != nil {
		t.logger.ErrorwCtx(ctx, "Startup publish failed",
			"error", err,
			"topic", t.topic,
			"snapshot_key", snapshot.IdentityKey(),
		)
		return err
	}

	t.logger.InfowCtx(ctx, "Startup snapshot published",
		"topic", result.Topic,
		"partition", result.Partition,
		"offset", result.Offset,
		"snapshot_key", snapshot.IdentityKey(),
	)

	return nil
}
