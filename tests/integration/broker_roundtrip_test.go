package integration

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkaclient "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratefeed/internal/broker"
	"ratefeed/internal/config"
	pkgerrors "ratefeed/pkg/errors"
	"ratefeed/pkg/models"
)

func TestKafkaProducer_PublishReportsPosition(t *testing.T) {
	infra := SetupKafkaInfra(t)

	ctx := context.Background()
	log := createTestLogger()

	topic := "fx_rates_publish"
	createTopic(t, infra.KafkaBrokers, topic)

	cfg := createTestBrokerConfig(infra.KafkaBrokers, topic)
	producer, err := broker.NewProducer(cfg, log)
	require.NoError(t, err)
	defer producer.Close()

	first, err := producer.Publish(ctx, topic, createTestSnapshot("USD"))
	require.NoError(t, err)
	assert.Equal(t, topic, first.Topic)
	assert.Equal(t, 0, first.Partition)
	assert.GreaterOrEqual(t, first.Offset, int64(0))

	second, err := producer.Publish(ctx, topic, createTestSnapshot("USD"))
	require.NoError(t, err)
	assert.Equal(t, first.Partition, second.Partition, "same base currency must hash to the same partition")
	assert.Greater(t, second.Offset, first.Offset)
}

func TestKafkaConsumer_DeliversInPublishOrder(t *testing.T) {
	infra := SetupKafkaInfra(t)

	ctx := context.Background()
	log := createTestLogger()

	topic := "fx_rates_order"
	createTopic(t, infra.KafkaBrokers, topic)

	cfg := createTestBrokerConfig(infra.KafkaBrokers, topic)
	producer, err := broker.NewProducer(cfg, log)
	require.NoError(t, err)
	defer producer.Close()

	var published []string
	for i := 0; i < 3; i++ {
		snapshot := createTestSnapshot("USD")
		snapshot.TimeLastUpdated = 1719360000 + int64(i)
		published = append(published, snapshot.IdentityKey())

		_, err := producer.Publish(ctx, topic, snapshot)
		require.NoError(t, err)
	}

	received := make(chan string, 3)
	consumer, cancel := startConsumer(t, cfg, topic, func(ctx context.Context, msg broker.Message) error {
		snapshot, err := models.DecodeSnapshot(msg.Value)
		if err != nil {
			return pkgerrors.ErrDecode.WithCause(err)
		}
		received <- snapshot.IdentityKey()
		return nil
	})
	defer cancel()
	defer consumer.Close()

	for i := 0; i < 3; i++ {
		select {
		case key := <-received:
			assert.Equal(t, published[i], key, "messages on one partition must arrive in publish order")
		case <-time.After(messageWaitTimeout):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestKafkaConsumer_MalformedMessageGoesToDLQ(t *testing.T) {
	infra := SetupKafkaInfra(t)

	ctx := context.Background()
	log := createTestLogger()

	topic := "fx_rates_dlq_source"
	dlqTopic := "fx_rates_dlq"
	createTopic(t, infra.KafkaBrokers, topic)
	createTopic(t, infra.KafkaBrokers, dlqTopic)

	cfg := createTestBrokerConfig(infra.KafkaBrokers, topic)
	cfg.Kafka.DLQTopic = dlqTopic

	writeRawMessage(t, infra.KafkaBrokers, topic, []byte("not-json"))

	producer, err := broker.NewProducer(cfg, log)
	require.NoError(t, err)
	defer producer.Close()

	received := make(chan string, 1)
	consumer, cancel := startConsumer(t, cfg, topic, func(ctx context.Context, msg broker.Message) error {
		snapshot, err := models.DecodeSnapshot(msg.Value)
		if err != nil {
			return pkgerrors.ErrDecode.WithCause(err)
		}
		received <- snapshot.IdentityKey()
		return nil
	})
	defer cancel()
	defer consumer.Close()

	// The malformed message must not wedge the partition: the snapshot
	// published after it still arrives.
	snapshot := createTestSnapshot("USD")
	_, err = producer.Publish(ctx, topic, snapshot)
	require.NoError(t, err)

	select {
	case key := <-received:
		assert.Equal(t, snapshot.IdentityKey(), key)
	case <-time.After(messageWaitTimeout):
		t.Fatal("timed out waiting for the message published after the malformed one")
	}

	dlqMsg := readOneMessage(t, infra.KafkaBrokers, dlqTopic)
	require.NotNil(t, dlqMsg, "malformed message should be forwarded to the DLQ")
	assert.Equal(t, []byte("not-json"), dlqMsg.Value)
	assert.Equal(t, topic, headerString(dlqMsg.Headers, "source_topic"))
	assert.NotEmpty(t, headerString(dlqMsg.Headers, "failure_reason"))
}

func TestKafkaConsumer_RetryableFailureRetriesInPlace(t *testing.T) {
	infra := SetupKafkaInfra(t)

	ctx := context.Background()
	log := createTestLogger()

	topic := "fx_rates_retry"
	createTopic(t, infra.KafkaBrokers, topic)

	cfg := createTestBrokerConfig(infra.KafkaBrokers, topic)
	producer, err := broker.NewProducer(cfg, log)
	require.NoError(t, err)
	defer producer.Close()

	snapshot := createTestSnapshot("USD")
	_, err = producer.Publish(ctx, topic, snapshot)
	require.NoError(t, err)

	var attempts atomic.Int32
	received := make(chan string, 1)
	consumer, cancel := startConsumer(t, cfg, topic, func(ctx context.Context, msg broker.Message) error {
		if attempts.Add(1) < 3 {
			return pkgerrors.ErrStoreUnavailable.WithDetail("message", "store flapping")
		}
		decoded, err := models.DecodeSnapshot(msg.Value)
		if err != nil {
			return pkgerrors.ErrDecode.WithCause(err)
		}
		received <- decoded.IdentityKey()
		return nil
	})
	defer cancel()
	defer consumer.Close()

	select {
	case key := <-received:
		assert.Equal(t, snapshot.IdentityKey(), key)
	case <-time.After(messageWaitTimeout):
		t.Fatal("timed out waiting for the retried message")
	}

	assert.Equal(t, int32(3), attempts.Load(), "the same message should be retried in place until it succeeds")
}

func startConsumer(t *testing.T, cfg config.BrokerConfig, topic string, handler broker.HandlerFunc) (broker.Consumer, context.CancelFunc) {
	t.Helper()

	consumer, err := broker.NewConsumer(cfg, createTestLogger())
	require.NoError(t, err)

	consumeCtx, cancel := context.WithCancel(context.Background())
	go func() {
		consumer.Consume(consumeCtx, topic, handler)
	}()

	return consumer, cancel
}

func writeRawMessage(t *testing.T, brokers []string, topic string, value []byte) {
	t.Helper()

	writer := &kafkaclient.Writer{
		Addr:         kafkaclient.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkaclient.LeastBytes{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafkaclient.RequireOne,
	}
	defer writer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := writer.WriteMessages(ctx, kafkaclient.Message{
		Key:   []byte("raw"),
		Value: value,
		Time:  time.Now(),
	})
	require.NoError(t, err)
}

func readOneMessage(t *testing.T, brokers []string, topic string) *kafkaclient.Message {
	t.Helper()

	reader := kafkaclient.NewReader(kafkaclient.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     fmt.Sprintf("ratefeed-test-reader-%s", uuid.NewString()),
		StartOffset: kafkaclient.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     2 * time.Second,
	})
	defer reader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), messageWaitTimeout)
	defer cancel()

	msg, err := reader.FetchMessage(ctx)
	if err != nil {
		return nil
	}
	return &msg
}

func headerString(headers []kafkaclient.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
