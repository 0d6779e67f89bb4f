package broker

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratefeed/internal/config"
	"ratefeed/internal/logger"
	"ratefeed/pkg/errors"
	"ratefeed/pkg/models"
)

type scriptedProducer struct {
	calls        int
	failuresLeft int
	failWith     error
	result       DeliveryResult
	serviceName  string
	closed       bool
}

func (p *scriptedProducer) Publish(ctx context.Context, topic string, snapshot *models.RateSnapshot) (DeliveryResult, error) {
	p.calls++
	if p.failuresLeft > 0 {
		p.failuresLeft--
		return DeliveryResult{}, p.failWith
	}
	return p.result, nil
}

func (p *scriptedProducer) Close() error {
	p.closed = true
	return nil
}

func (p *scriptedProducer) SetServiceName(name string) {
	p.serviceName = name
}

func fastPublishRetry(maxAttempts int) config.PublishRetryConfig {
	return config.PublishRetryConfig{
		Enabled:         true,
		MaxAttempts:     maxAttempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func testSnapshot() *models.RateSnapshot {
	return &models.RateSnapshot{
		Base:            "USD",
		Date:            "2025-06-26",
		TimeLastUpdated: 1719360000,
		Rates:           map[string]float64{"EUR": 0.85},
	}
}

func TestRetryingProducerRetriesTransientFailures(t *testing.T) {
	inner := &scriptedProducer{
		failuresLeft: 2,
		failWith:     stderrors.New("broker unavailable"),
		result:       DeliveryResult{Topic: "fx_rates", Partition: 1, Offset: 42},
	}
	producer := NewRetryingProducer(inner, fastPublishRetry(5), logger.NopLogger())

	result, err := producer.Publish(context.Background(), "fx_rates", testSnapshot())

	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, DeliveryResult{Topic: "fx_rates", Partition: 1, Offset: 42}, result)
}

func TestRetryingProducerStopsOnFatalError(t *testing.T) {
	inner := &scriptedProducer{
		failuresLeft: 10,
		failWith:     errors.ErrConfig.WithDetail("message", "topic name is empty"),
	}
	producer := NewRetryingProducer(inner, fastPublishRetry(5), logger.NopLogger())

	_, err := producer.Publish(context.Background(), "", testSnapshot())

	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.True(t, errors.IsFatal(err))
}

func TestRetryingProducerSurfacesExhaustedRetries(t *testing.T) {
	inner := &scriptedProducer{
		failuresLeft: 10,
		failWith:     stderrors.New("broker unavailable"),
	}
	producer := NewRetryingProducer(inner, fastPublishRetry(3), logger.NopLogger())

	result, err := producer.Publish(context.Background(), "fx_rates", testSnapshot())

	require.Error(t, err)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, DeliveryResult{}, result)
}

func TestRetryingProducerDelegatesCloseAndServiceName(t *testing.T) {
	inner := &scriptedProducer{}
	producer := NewRetryingProducer(inner, fastPublishRetry(3), logger.NopLogger())

	producer.SetServiceName("ingest")
	require.NoError(t, producer.Close())

	assert.Equal(t, "ingest", inner.serviceName)
	assert.True(t, inner.closed)
}

func TestNewProducerSelectsBrokerType(t *testing.T) {
	tests := []struct {
		name         string
		cfg          config.BrokerConfig
		wantRetrying bool
		wantErr      bool
	}{
		{
			name: "bare kafka producer",
			cfg: config.BrokerConfig{
				Type:  "kafka",
				Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}},
			},
		},
		{
			name: "retrying kafka producer",
			cfg: config.BrokerConfig{
				Type: "kafka",
				Kafka: config.KafkaConfig{
					Brokers:      []string{"localhost:9092"},
					PublishRetry: fastPublishRetry(3),
				},
			},
			wantRetrying: true,
		},
		{
			name:    "unknown broker type",
			cfg:     config.BrokerConfig{Type: "rabbitmq"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			producer, err := NewProducer(tt.cfg, logger.NopLogger())
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			_, retrying := producer.(*RetryingProducer)
			assert.Equal(t, tt.wantRetrying, retrying)
		})
	}
}

func TestNewConsumerRejectsUnknownType(t *testing.T) {
	_, err := NewConsumer(config.BrokerConfig{Type: "nats"}, logger.NopLogger())
	require.Error(t, err)
}

func TestPublishRejectsEmptyTopic(t *testing.T) {
	producer := NewKafkaProducer(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, logger.NopLogger())
	defer producer.Close()

	_, err := producer.Publish(context.Background(), "", testSnapshot())

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig.Code))
	assert.True(t, errors.IsFatal(err))
}

func TestPublishRejectsInvalidSnapshot(t *testing.T) {
	producer := NewKafkaProducer(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, logger.NopLogger())
	defer producer.Close()

	snapshot := testSnapshot()
	snapshot.Base = ""

	_, err := producer.Publish(context.Background(), "fx_rates", snapshot)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrPublish.Code))
	assert.True(t, errors.IsFatal(err))
}

func TestDLQReasonClassification(t *testing.T) {
	decodeErr := errors.ErrDecode.WithCause(stderrors.New("bad json"))
	storeErr := errors.ErrStoreRejected.WithCause(stderrors.New("schema violation"))

	assert.Equal(t, "decode_error", dlqReason(decodeErr))
	assert.Equal(t, "terminal_error", dlqReason(storeErr))
	assert.Equal(t, "terminal_error", dlqReason(stderrors.New("unclassified")))
}

func TestHeaderValue(t *testing.T) {
	headers := []kafka.Header{
		{Key: "snapshot_key", Value: []byte("USD|2025-06-26|1719360000")},
		{Key: "correlation_id", Value: []byte("abc-123")},
	}

	assert.Equal(t, "USD|2025-06-26|1719360000", headerValue(headers, "snapshot_key"))
	assert.Equal(t, "", headerValue(headers, "missing"))
}

func TestDetachOnShutdown(t *testing.T) {
	live := context.Background()
	got, cancel := detachOnShutdown(live)
	cancel()
	assert.Equal(t, live, got)

	canceled, cancelParent := context.WithCancel(context.Background())
	cancelParent()

	detached, cancelDetached := detachOnShutdown(canceled)
	defer cancelDetached()

	require.NoError(t, detached.Err())
	_, hasDeadline := detached.Deadline()
	assert.True(t, hasDeadline)
}
