package integration

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratefeed/internal/broker"
	"ratefeed/internal/rates"
	pkgerrors "ratefeed/pkg/errors"
	"ratefeed/pkg/models"
)

// The pipeline tests wire producer, consumer and sink together the way
// the ingest service does, against real Kafka and MongoDB containers.

func TestPipeline_SnapshotFlowsFromTopicToStore(t *testing.T) {
	infra := SetupTestInfra(t)

	ctx := context.Background()
	log := createTestLogger()

	topic := "fx_rates_pipeline"
	createTopic(t, infra.KafkaBrokers, topic)

	repo := rates.NewRepository(infra.MongoDB, "rate_snapshots")
	sink := rates.NewSink(repo, log)
	defer sink.Stop()

	cfg := createTestBrokerConfig(infra.KafkaBrokers, topic)
	producer, err := broker.NewProducer(cfg, log)
	require.NoError(t, err)
	defer producer.Close()

	consumer, cancel := startConsumer(t, cfg, topic, func(ctx context.Context, msg broker.Message) error {
		snapshot, err := models.DecodeSnapshot(msg.Value)
		if err != nil {
			return pkgerrors.ErrDecode.WithCause(err)
		}
		return sink.Store(ctx, snapshot)
	})
	defer cancel()
	defer consumer.Close()

	snapshot := createTestSnapshot("USD")
	result, err := producer.Publish(ctx, topic, snapshot)
	require.NoError(t, err)
	assert.Equal(t, topic, result.Topic)

	doc := waitForStoredDocument(t, repo, snapshot.IdentityKey())
	require.NotNil(t, doc, "published snapshot never reached the store")
	assert.Equal(t, "USD", doc.Base)
	assert.Equal(t, "2025-06-26", doc.ObservedAt)
	assert.Equal(t, int64(1719360000), doc.FetchedAtEpoch)
	assert.Equal(t, snapshot.Rates, doc.Rates)
	assert.False(t, doc.StoredAt.IsZero())
}

func TestPipeline_RedeliveryKeepsSingleDocument(t *testing.T) {
	infra := SetupTestInfra(t)

	ctx := context.Background()
	log := createTestLogger()

	topic := "fx_rates_pipeline_redelivery"
	createTopic(t, infra.KafkaBrokers, topic)

	repo := rates.NewRepository(infra.MongoDB, "rate_snapshots")
	sink := rates.NewSink(repo, log)
	defer sink.Stop()

	cfg := createTestBrokerConfig(infra.KafkaBrokers, topic)
	producer, err := broker.NewProducer(cfg, log)
	require.NoError(t, err)
	defer producer.Close()

	var processed atomic.Int32
	consumer, cancel := startConsumer(t, cfg, topic, func(ctx context.Context, msg broker.Message) error {
		snapshot, err := models.DecodeSnapshot(msg.Value)
		if err != nil {
			return pkgerrors.ErrDecode.WithCause(err)
		}
		if err := sink.Store(ctx, snapshot); err != nil {
			return err
		}
		processed.Add(1)
		return nil
	})
	defer cancel()
	defer consumer.Close()

	snapshot := createTestSnapshot("USD")
	_, err = producer.Publish(ctx, topic, snapshot)
	require.NoError(t, err)
	_, err = producer.Publish(ctx, topic, snapshot)
	require.NoError(t, err)

	deadline := time.Now().Add(messageWaitTimeout)
	for processed.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(pollInterval)
	}
	require.Equal(t, int32(2), processed.Load(), "both deliveries should be consumed")

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "redelivered snapshot must upsert into the same document")
}

func waitForStoredDocument(t *testing.T, repo rates.Repository, id string) *rates.RateDocument {
	t.Helper()

	deadline := time.Now().Add(messageWaitTimeout)
	for time.Now().Before(deadline) {
		doc, err := repo.Get(context.Background(), id)
		if err == nil {
			return doc
		}
		time.Sleep(pollInterval)
	}
	return nil
}
