package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ValidationError names the offending config key so a startup failure points
// at the exact line to fix.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// problems accumulates every invalid field so one startup failure reports
// the whole set instead of one field per restart.
type problems struct {
	errs []error
}

func (p *problems) add(field, format string, args ...interface{}) {
	p.errs = append(p.errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// ValidateStatic runs before any client is constructed, a bad config aborts
// startup rather than surfacing later as a publish or store failure.
func ValidateStatic(cfg *Config) error {
	var p problems

	checkServer(&p, cfg.Server)
	checkSource(&p, cfg.Source)
	checkBroker(&p, cfg.Broker)
	checkMongoDB(&p, cfg.Database.MongoDB)

	if len(p.errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(p.errs...))
	}
	return nil
}

func checkServer(p *problems, cfg ServerConfig) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		p.add("server.port", "port must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.ReadTimeoutSeconds <= 0 {
		p.add("server.read_timeout_seconds", "read timeout must be positive")
	}
	if cfg.WriteTimeoutSeconds <= 0 {
		p.add("server.write_timeout_seconds", "write timeout must be positive")
	}
}

func checkSource(p *problems, cfg SourceConfig) {
	if cfg.URL == "" {
		p.add("source.url", "payload source URL is required")
		return
	}

	parsed, err := url.Parse(cfg.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		p.add("source.url", "payload source URL must be a valid http(s) URL, got %q", cfg.URL)
	}
	if cfg.TimeoutSeconds < 0 {
		p.add("source.timeout_seconds", "timeout must be non-negative")
	}
}

func checkBroker(p *problems, cfg BrokerConfig) {
	switch cfg.Type {
	case "":
		p.add("broker.type", "broker type is required")
	case "kafka":
		checkKafka(p, cfg.Kafka)
	default:
		p.add("broker.type", "unknown broker type: %s (supported: kafka)", cfg.Type)
	}
}

func checkKafka(p *problems, cfg KafkaConfig) {
	if len(cfg.Brokers) == 0 {
		p.add("broker.kafka.brokers", "at least one Kafka broker is required")
	}
	for i, addr := range cfg.Brokers {
		if addr == "" {
			p.add(fmt.Sprintf("broker.kafka.brokers[%d]", i), "broker address cannot be empty")
		}
	}
	if cfg.GroupID == "" {
		p.add("broker.kafka.group_id", "Kafka consumer group ID is required")
	}
	if cfg.Topic == "" {
		p.add("broker.kafka.topic", "Kafka topic is required")
	}

	checkBackoff(p, "broker.kafka.retry", 0, cfg.Retry)
	if cfg.PublishRetry.Enabled {
		checkBackoff(p, "broker.kafka.publish_retry", 1, RetryConfig{
			MaxAttempts:     cfg.PublishRetry.MaxAttempts,
			InitialInterval: cfg.PublishRetry.InitialInterval,
			MaxInterval:     cfg.PublishRetry.MaxInterval,
			Multiplier:      cfg.PublishRetry.Multiplier,
		})
	}
}

// checkBackoff validates the retry tuple both retry blocks share. The
// consumer retry passes minAttempts 0 because 0 means uncapped there, publish
// retry passes 1 since it has no uncapped mode.
func checkBackoff(p *problems, prefix string, minAttempts int, cfg RetryConfig) {
	if cfg.MaxAttempts < minAttempts {
		if minAttempts > 0 {
			p.add(prefix+".max_attempts", "max_attempts must be at least %d when enabled", minAttempts)
		} else {
			p.add(prefix+".max_attempts", "max_attempts must be non-negative, 0 removes the cap")
		}
	}
	if cfg.InitialInterval < 0 {
		p.add(prefix+".initial_interval", "initial_interval must be non-negative")
	}
	if cfg.MaxInterval < 0 {
		p.add(prefix+".max_interval", "max_interval must be non-negative")
	}
	if cfg.MaxInterval > 0 && cfg.InitialInterval > 0 && cfg.MaxInterval < cfg.InitialInterval {
		p.add(prefix+".max_interval", "max_interval must be at least initial_interval")
	}
	if cfg.Multiplier < 0 {
		p.add(prefix+".multiplier", "multiplier must be non-negative, 0 uses the default")
	}
}

func checkMongoDB(p *problems, cfg MongoDBConfig) {
	switch {
	case cfg.URI == "":
		p.add("database.mongodb.uri", "MongoDB URI is required")
	case !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://"):
		p.add("database.mongodb.uri", "MongoDB URI must start with mongodb:// or mongodb+srv://")
	}
	if cfg.Database == "" {
		p.add("database.mongodb.database", "MongoDB database name is required")
	}
	if cfg.Collection == "" {
		p.add("database.mongodb.collection", "MongoDB collection name is required")
	}
}
