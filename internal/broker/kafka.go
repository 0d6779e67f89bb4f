package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"ratefeed/internal/config"
	"ratefeed/internal/constants"
	"ratefeed/internal/logger"
	"ratefeed/pkg/errors"
	"ratefeed/pkg/logging"
	"ratefeed/pkg/metrics"
	"ratefeed/pkg/models"
	"ratefeed/pkg/retry"
	"ratefeed/pkg/tracing"
)

type KafkaProducer struct {
	writer      *kafka.Writer
	logger      logger.Logger
	serviceName string
}

// deliveryReport carries the broker-assigned position of one message from
// the writer's completion callback back to the publishing goroutine.
type deliveryReport struct {
	partition int
	offset    int64
	err       error
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	w.Completion = func(messages []kafka.Message, err error) {
		for _, m := range messages {
			ch, ok := m.WriterData.(chan deliveryReport)
			if !ok {
				continue
			}
			select {
			case ch <- deliveryReport{partition: m.Partition, offset: m.Offset, err: err}:
			default:
			}
		}
	}

	return &KafkaProducer{writer: w, logger: log, serviceName: "unknown"}
}

func (p *KafkaProducer) SetServiceName(name string) {
	p.serviceName = name
}

// Publish sends one snapshot synchronously and returns the partition and
// offset the broker assigned. It never retries, callers that want retries
// layer a RetryingProducer on top.
func (p *KafkaProducer) Publish(ctx context.Context, topic string, snapshot *models.RateSnapshot) (DeliveryResult, error) {
	if topic == "" {
		return DeliveryResult{}, errors.ErrConfig.WithDetail("message", "topic name is empty")
	}

	body, err := models.EncodeSnapshot(snapshot)
	if err != nil {
		return DeliveryResult{}, errors.ErrPublish.WithCause(err).AsFatal()
	}

	headers := []kafka.Header{
		{Key: constants.HeaderCorrelationID, Value: []byte(uuid.NewString())},
		{Key: constants.HeaderSnapshotKey, Value: []byte(snapshot.IdentityKey())},
	}
	headers = tracing.InjectKafkaHeaders(ctx, headers)

	report := make(chan deliveryReport, 1)
	msg := kafka.Message{
		Topic:      topic,
		Key:        snapshot.PartitionKey(),
		Value:      body,
		Headers:    headers,
		Time:       time.Now(),
		WriterData: report,
	}

	start := time.Now()
	err = p.writer.WriteMessages(ctx, msg)
	duration := time.Since(start)

	if err != nil {
		metrics.SnapshotPublishTotal.WithLabelValues("error").Inc()
		metrics.ObservePublishDuration(duration, "error")
		p.logger.ErrorwCtx(ctx, "Snapshot publish failed",
			"topic", topic,
			"snapshot_key", snapshot.IdentityKey(),
			"error", err,
		)
		return DeliveryResult{}, errors.Wrap(err, errors.ErrPublish)
	}

	result := DeliveryResult{Topic: topic, Partition: -1, Offset: -1}
	select {
	case r := <-report:
		if r.err != nil {
			metrics.SnapshotPublishTotal.WithLabelValues("error").Inc()
			metrics.ObservePublishDuration(duration, "error")
			return DeliveryResult{}, errors.Wrap(r.err, errors.ErrPublish)
		}
		result.Partition = r.partition
		result.Offset = r.offset
	case <-ctx.Done():
		return DeliveryResult{}, errors.Wrap(ctx.Err(), errors.ErrPublish)
	case <-time.After(constants.KafkaWriteTimeout):
		// The write was acknowledged, only the position report is missing.
		p.logger.WarnwCtx(ctx, "Delivery report not received",
			"topic", topic,
			"snapshot_key", snapshot.IdentityKey(),
		)
	}

	metrics.SnapshotPublishTotal.WithLabelValues("success").Inc()
	metrics.ObservePublishDuration(duration, "success")
	metrics.KafkaMessagesWrittenTotal.WithLabelValues(topic).Inc()
	metrics.ObserveKafkaMessageSize(topic, "write", len(body))
	metrics.ObserveKafkaWriteDuration(topic, duration)

	p.logger.InfowCtx(ctx, "Snapshot published",
		"topic", topic,
		"snapshot_key", snapshot.IdentityKey(),
		"partition", result.Partition,
		"offset", result.Offset,
	)

	return result, nil
}

// publishRaw forwards an already-encoded payload, used for DLQ routing where
// the payload may not decode.
func (p *KafkaProducer) publishRaw(ctx context.Context, topic string, key, value []byte, headers []kafka.Header) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: headers,
		Time:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.KafkaMessagesWrittenTotal.WithLabelValues(topic).Inc()
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

type KafkaConsumer struct {
	cfg         config.KafkaConfig
	wg          sync.WaitGroup
	reader      *kafka.Reader
	logger      logger.Logger
	dlq         *KafkaProducer
	serviceName string
}

func NewKafkaConsumer(cfg config.KafkaConfig, log logger.Logger) *KafkaConsumer {
	consumer := &KafkaConsumer{
		cfg:         cfg,
		logger:      log,
		serviceName: "unknown",
	}

	if cfg.DLQTopic != "" {
		consumer.dlq = NewKafkaProducer(cfg, log)
	}

	return consumer
}

func (c *KafkaConsumer) SetServiceName(name string) {
	c.serviceName = name
	if c.dlq != nil {
		c.dlq.SetServiceName(name)
	}
}

// Consume runs the receive loop until ctx is canceled. Offsets move only
// after the handler outcome is known: acknowledged and terminal messages are
// committed, retryable failures hold the offset and are retried in place so
// a restart redelivers them.
func (c *KafkaConsumer) Consume(ctx context.Context, topic string, handler HandlerFunc) error {
	c.logger.Infow("Creating Kafka reader",
		"topic", topic,
		"brokers", c.cfg.Brokers,
		"group_id", c.cfg.GroupID,
		"service_name", c.serviceName,
	)

	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.cfg.Brokers,
		GroupID:  c.cfg.GroupID,
		Topic:    topic,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})

	errCh := make(chan error, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		errCh <- c.consumeLoop(ctx, topic, handler)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (c *KafkaConsumer) consumeLoop(ctx context.Context, topic string, handler HandlerFunc) error {
	loopCtx := logging.WithServiceName(ctx, c.serviceName)
	c.logger.InfowCtx(loopCtx, "Started consuming",
		"topic", topic,
	)

	for {
		start := time.Now()
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.InfowCtx(loopCtx, "Stopped consuming",
					"topic", topic,
					"reason", "context canceled",
				)
				return nil
			}
			c.logger.ErrorwCtx(loopCtx, "Error fetching kafka message",
				"error", err,
				"topic", topic,
			)
			time.Sleep(constants.KafkaFetchBackoff)
			continue
		}

		metrics.KafkaMessagesReadTotal.WithLabelValues(topic).Inc()
		metrics.ObserveKafkaReadDuration(topic, time.Since(start))
		metrics.ObserveKafkaMessageSize(topic, "read", len(m.Value))

		if err := c.processMessage(ctx, topic, m, handler); err != nil {
			return err
		}
	}
}

// processMessage drives one message to a final outcome. The returned error is
// non-nil only when the loop itself must stop (bounded retries exhausted on a
// retryable failure, committing would lose the message).
func (c *KafkaConsumer) processMessage(ctx context.Context, topic string, m kafka.Message, handler HandlerFunc) error {
	msgCtx, span := tracing.SpanFromKafkaHeaders(ctx, "kafka.consume", m.Headers)
	defer span.End()

	msgCtx = logging.WithServiceName(msgCtx, c.serviceName)
	if key := headerValue(m.Headers, constants.HeaderSnapshotKey); key != "" {
		msgCtx = logging.WithSnapshotKey(msgCtx, key)
	}

	msg := Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Time:      m.Time,
	}

	err := c.processWithRetry(msgCtx, msg, handler)
	switch {
	case err == nil:
		c.commit(msgCtx, m, metrics.CommitReasonAcked)
		return nil

	case errors.IsFatal(err):
		c.logger.ErrorwCtx(msgCtx, "Message terminally failed, dropping",
			"error", err,
			"topic", topic,
			"partition", m.Partition,
			"offset", m.Offset,
		)
		c.forwardToDLQ(msgCtx, m, err, topic)
		c.commit(msgCtx, m, metrics.CommitReasonTerminal)
		return nil

	case ctx.Err() != nil:
		// Shutdown mid-retry, the offset stays where it was so the next
		// session redelivers this message.
		c.logger.InfowCtx(msgCtx, "Shutdown during retry, message left uncommitted",
			"topic", topic,
			"partition", m.Partition,
			"offset", m.Offset,
		)
		return nil

	default:
		// A retryable failure outlived a bounded retry budget. Committing
		// would discard the message, skipping would let a later commit cover
		// its offset, so the loop stops and the restart redelivers.
		c.logger.ErrorwCtx(msgCtx, "Retry budget exhausted, stopping consumer",
			"error", err,
			"topic", topic,
			"partition", m.Partition,
			"offset", m.Offset,
		)
		return fmt.Errorf("retry budget exhausted at %s[%d]@%d: %w", topic, m.Partition, m.Offset, err)
	}
}

func (c *KafkaConsumer) Close() error {
	var err error
	if c.reader != nil {
		err = c.reader.Close()
	}
	if c.dlq != nil {
		if closeErr := c.dlq.Close(); closeErr != nil {
			if err == nil {
				err = closeErr
			}
		}
	}
	c.wg.Wait()
	return err
}

func (c *KafkaConsumer) processWithRetry(ctx context.Context, msg Message, handler HandlerFunc) error {
	policy := retry.UnboundedPolicy()

	if c.cfg.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = c.cfg.Retry.MaxAttempts
	}
	if c.cfg.Retry.InitialInterval > 0 {
		policy.InitialInterval = c.cfg.Retry.InitialInterval
	}
	if c.cfg.Retry.MaxInterval > 0 {
		policy.MaxInterval = c.cfg.Retry.MaxInterval
	}
	if c.cfg.Retry.Multiplier > 0 {
		policy.Multiplier = c.cfg.Retry.Multiplier
	}
	if c.cfg.Retry.MaxElapsedTime > 0 {
		policy.MaxElapsedTime = c.cfg.Retry.MaxElapsedTime
	}

	return retry.RetryWithCallback(ctx, policy, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.RecoverPanic(r)
				c.logger.ErrorwCtx(ctx, "Panic recovered during message processing",
					"error", err,
					"topic", msg.Topic,
				)
			}
		}()
		return handler(ctx, msg)
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(msg.Topic).Inc()
		c.logger.WarnwCtx(ctx, "Retrying message processing",
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
	})
}

func (c *KafkaConsumer) commit(ctx context.Context, m kafka.Message, reason string) {
	commitCtx, cancel := detachOnShutdown(ctx)
	defer cancel()

	if err := c.reader.CommitMessages(commitCtx, m); err != nil {
		c.logger.ErrorwCtx(ctx, "Failed to commit message",
			"error", err,
			"topic", m.Topic,
			"partition", m.Partition,
			"offset", m.Offset,
		)
		return
	}

	metrics.ConsumerCommitsTotal.WithLabelValues(reason).Inc()
}

func (c *KafkaConsumer) forwardToDLQ(ctx context.Context, m kafka.Message, cause error, sourceTopic string) {
	if c.dlq == nil || c.cfg.DLQTopic == "" {
		c.logger.WarnwCtx(ctx, "No DLQ configured, message dropped",
			"topic", sourceTopic,
			"partition", m.Partition,
			"offset", m.Offset,
			"payload_preview", truncate(m.Value, constants.PayloadPreviewLen),
		)
		return
	}

	headers := append(m.Headers,
		kafka.Header{Key: constants.HeaderFailureReason, Value: []byte(cause.Error())},
		kafka.Header{Key: constants.HeaderSourceTopic, Value: []byte(sourceTopic)},
	)

	dlqCtx, cancel := detachOnShutdown(ctx)
	defer cancel()

	if err := c.dlq.publishRaw(dlqCtx, c.cfg.DLQTopic, m.Key, m.Value, headers); err != nil {
		c.logger.ErrorwCtx(ctx, "Failed to publish to DLQ",
			"error", err,
			"topic", sourceTopic,
			"dlq_topic", c.cfg.DLQTopic,
		)
		return
	}

	metrics.DLQMessagesTotal.WithLabelValues(sourceTopic, dlqReason(cause)).Inc()
	c.logger.InfowCtx(ctx, "Message sent to DLQ",
		"source_topic", sourceTopic,
		"dlq_topic", c.cfg.DLQTopic,
		"reason", cause.Error(),
	)
}

// detachOnShutdown keeps commit and DLQ writes working while the root
// context unwinds, bounded so shutdown cannot hang.
func detachOnShutdown(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(context.WithoutCancel(ctx), constants.ShutdownTimeout)
}

func dlqReason(err error) string {
	if errors.IsCode(err, errors.ErrDecode.Code) {
		return "decode_error"
	}
	return "terminal_error"
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func truncate(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
