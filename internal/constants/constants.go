package constants

import "time"

// Broker tuning shared by the producer and consumer.
const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
	KafkaFetchBackoff = 1 * time.Second
)

// Soft deadlines for calls that leave the process.
const (
	DefaultFetchTimeout = 10 * time.Second
	StoreWriteTimeout   = 10 * time.Second
	StoreQueryTimeout   = 10 * time.Second
	ShutdownTimeout     = 5 * time.Second
)

// Fallbacks for names the config may leave empty.
const (
	DefaultRatesTopic      = "fx_rates"
	DefaultMongoDBName     = "ratefeed"
	DefaultRatesCollection = "rate_snapshots"
)

// Query API paging bounds.
const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

const (
	DocumentGaugeInterval = 30 * time.Second
	PayloadPreviewLen     = 100
)

// Kafka header names carried alongside every published snapshot.
const (
	HeaderCorrelationID = "correlation_id"
	HeaderSnapshotKey   = "snapshot_key"
	HeaderFailureReason = "failure_reason"
	HeaderSourceTopic   = "source_topic"
)
