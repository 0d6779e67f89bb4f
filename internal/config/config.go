package config

import (
	"time"
)

// Config is the full configuration tree for both services. Each binary reads
// the same file shape and ignores the sections it does not use.
type Config struct {
	Server         ServerConfig
	Source         SourceConfig
	Broker         BrokerConfig
	Database       DatabaseConfig
	Query          QueryConfig
	Logging        LoggingConfig
	CircuitBreaker CircuitBreakerConfig
	Tracing        TracingConfig
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

// SourceConfig points at the upstream rates feed polled by the startup
// trigger.
type SourceConfig struct {
	URL            string        `mapstructure:"url"`
	TimeoutSeconds time.Duration `mapstructure:"timeout_seconds"`
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers      []string           `mapstructure:"brokers"`
	GroupID      string             `mapstructure:"group_id"`
	Topic        string             `mapstructure:"topic"`
	DLQTopic     string             `mapstructure:"dlq_topic"`
	Retry        RetryConfig        `mapstructure:"retry"`
	PublishRetry PublishRetryConfig `mapstructure:"publish_retry"`
}

// RetryConfig bounds the consumer's in-place retry of retryable sink
// failures. MaxAttempts 0 removes the cap so the consumer holds its offset
// until the sink recovers.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

// PublishRetryConfig gates the optional retrying decorator around the
// producer. Disabled by default, the bare producer makes exactly one attempt.
type PublishRetryConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
}

type DatabaseConfig struct {
	MongoDB MongoDBConfig
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// QueryConfig holds the settings only the query service reads.
type QueryConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled                bool    `mapstructure:"enabled"`
	RPS                    float64 `mapstructure:"rps"`
	Burst                  int     `mapstructure:"burst"`
	CleanupIntervalSeconds int     `mapstructure:"cleanup_interval"`
	MaxAgeSeconds          int     `mapstructure:"max_age"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CircuitBreakerConfig tunes the breaker in front of the Mongo repository.
// Zero values fall back to the breaker package defaults.
type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}
