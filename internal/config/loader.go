package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// envBindings maps config keys to the environment variables that override
// them, applied even when the key is absent from the YAML file.
var envBindings = map[string]string{
	"broker.kafka.brokers":         "BROKER_KAFKA_BROKERS",
	"broker.kafka.group_id":        "BROKER_KAFKA_GROUP_ID",
	"broker.kafka.topic":           "BROKER_KAFKA_TOPIC",
	"broker.kafka.dlq_topic":       "BROKER_KAFKA_DLQ_TOPIC",
	"source.url":                   "SOURCE_URL",
	"source.timeout_seconds":       "SOURCE_TIMEOUT_SECONDS",
	"database.mongodb.uri":         "DATABASE_MONGODB_URI",
	"database.mongodb.database":    "DATABASE_MONGODB_DATABASE",
	"database.mongodb.collection":  "DATABASE_MONGODB_COLLECTION",
	"server.port":                  "SERVER_PORT",
	"server.read_timeout_seconds":  "SERVER_READ_TIMEOUT_SECONDS",
	"server.write_timeout_seconds": "SERVER_WRITE_TIMEOUT_SECONDS",
	"logging.level":                "LOGGING_LEVEL",
	"logging.format":               "LOGGING_FORMAT",
	"tracing.enabled":              "TRACING_ENABLED",
	"tracing.otlp.endpoint":        "TRACING_OTLP_ENDPOINT",
	"tracing.otlp.insecure":        "TRACING_OTLP_INSECURE",
}

// Load reads the YAML file, applies environment overrides and fails fast on
// an invalid result. Each call builds its own viper instance, nothing is
// shared through package globals.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(configFile)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyListOverrides(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// applyListOverrides handles the env values viper cannot map itself: the
// broker list arrives as one comma-separated string, and the OTLP endpoint
// must win even when the tracing block is missing from the file.
func applyListOverrides(cfg *Config) {
	if raw := os.Getenv("BROKER_KAFKA_BROKERS"); raw != "" {
		var brokers []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				brokers = append(brokers, part)
			}
		}
		if len(brokers) > 0 {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	if endpoint := os.Getenv("TRACING_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Tracing.OTLP.Endpoint = endpoint
	}
}
