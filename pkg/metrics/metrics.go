package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RatesFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rates_fetch_total",
			Help: "Total number of rate fetches from the payload source (count)",
		},
		[]string{"status"},
	)

	RatesFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rates_fetch_duration_ms",
			Help:    "Duration of rate fetches from the payload source in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"status"},
	)

	SnapshotPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_publish_total",
			Help: "Total number of snapshot publish attempts (count)",
		},
		[]string{"status"},
	)

	SnapshotPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snapshot_publish_duration_ms",
			Help:    "Duration of snapshot publish attempts in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"status"},
	)

	SnapshotsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshots_consumed_total",
			Help: "Total number of consumed snapshot messages by outcome (count)",
		},
		[]string{"result"},
	)

	SinkStoreTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sink_store_total",
			Help: "Total number of sink store attempts by outcome (count)",
		},
		[]string{"status"},
	)

	SinkStoreDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sink_store_duration_ms",
			Help:    "Duration of sink store attempts in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"status"},
	)

	ConsumerCommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_commits_total",
			Help: "Total number of offset commits by reason (count)",
		},
		[]string{"reason"},
	)

	StoredSnapshots = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stored_snapshots",
			Help: "Number of rate snapshot documents in the store (count)",
		},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of publish and store retry attempts per topic (count)",
		},
		[]string{"topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages diverted to the dead letter topic (count)",
		},
		[]string{"topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of calls made through a circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failed calls through a circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against the per-client rate limit (count)",
		},
		[]string{"status"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages fetched from Kafka per topic (count)",
		},
		[]string{"topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka per topic (count)",
		},
		[]string{"topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka message payloads in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"topic", "direction"},
	)

	KafkaReadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_read_duration_ms",
			Help:    "Time spent waiting for the next Kafka message in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Time spent writing a Kafka message in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"topic"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of document store operations (count)",
		},
		[]string{"database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of document store operations in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"database", "operation"},
	)
)

// Consumed message outcomes.
const (
	ConsumeResultStored       = "stored"
	ConsumeResultDecodeFailed = "decode_failed"
	ConsumeResultDropped      = "dropped_terminal"
)

// Sink store outcomes.
const (
	StoreStatusUpserted  = "upserted"
	StoreStatusRetryable = "retryable_error"
	StoreStatusTerminal  = "terminal_error"
)

// Commit reasons.
const (
	CommitReasonAcked    = "acked"
	CommitReasonTerminal = "terminal"
)

func RegisterIngestMetrics() {
	prometheus.MustRegister(RatesFetchTotal)
	prometheus.MustRegister(RatesFetchDuration)
	prometheus.MustRegister(SnapshotPublishTotal)
	prometheus.MustRegister(SnapshotPublishDuration)
	prometheus.MustRegister(SnapshotsConsumedTotal)
	prometheus.MustRegister(SinkStoreTotal)
	prometheus.MustRegister(SinkStoreDuration)
	prometheus.MustRegister(ConsumerCommitsTotal)
	prometheus.MustRegister(StoredSnapshots)
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaMessageSizeBytes)
	prometheus.MustRegister(KafkaReadDuration)
	prometheus.MustRegister(KafkaWriteDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterQueryMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
}

// Counters are incremented at the call site, the helpers below exist for
// histograms so the millisecond conversion happens in one place.

func ObserveFetchDuration(duration time.Duration, status string) {
	RatesFetchDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func ObservePublishDuration(duration time.Duration, status string) {
	SnapshotPublishDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func ObserveSinkStoreDuration(duration time.Duration, status string) {
	SinkStoreDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func SetStoredSnapshots(count int64) {
	StoredSnapshots.Set(float64(count))
}

func ObserveKafkaMessageSize(topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(topic, direction).Observe(float64(sizeBytes))
}

func ObserveKafkaReadDuration(topic string, duration time.Duration) {
	KafkaReadDuration.WithLabelValues(topic).Observe(float64(duration.Milliseconds()))
}

func ObserveKafkaWriteDuration(topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(topic).Observe(float64(duration.Milliseconds()))
}

func ObserveDatabaseQueryDuration(database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(database, operation).Observe(float64(duration.Milliseconds()))
}
