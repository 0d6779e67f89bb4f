// Package health aggregates dependency probes behind the /health endpoint.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

const probeTimeout = 5 * time.Second

// Probe checks one dependency. The registry bounds each call with its own
// timeout, probes should not add one.
type Probe func(ctx context.Context) error

// Report is the JSON body served by /health. Unhealthy as soon as any
// single probe fails.
type Report struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

type Registry struct {
	names  []string
	probes map[string]Probe
}

func NewRegistry() *Registry {
	return &Registry{probes: make(map[string]Probe)}
}

// Add registers a named probe. Probes run in registration order.
func (r *Registry) Add(name string, probe Probe) {
	if _, seen := r.probes[name]; !seen {
		r.names = append(r.names, name)
	}
	r.probes[name] = probe
}

func (r *Registry) Run(ctx context.Context) Report {
	report := Report{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(r.names)),
	}

	for _, name := range r.names {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := r.probes[name](probeCtx)
		cancel()

		if err != nil {
			report.Status = StatusUnhealthy
			report.Checks[name] = CheckResult{Status: StatusUnhealthy, Message: err.Error()}
			continue
		}
		report.Checks[name] = CheckResult{Status: StatusHealthy}
	}

	return report
}

// MongoProbe pings the document store.
func MongoProbe(client *mongo.Client) Probe {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx, nil); err != nil {
			return fmt.Errorf("mongodb ping failed: %w", err)
		}
		return nil
	}
}

// KafkaProbe dials the first broker and requests cluster metadata.
func KafkaProbe(brokers []string) Probe {
	return func(ctx context.Context) error {
		if len(brokers) == 0 {
			return fmt.Errorf("no kafka brokers configured")
		}

		conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
		if err != nil {
			return fmt.Errorf("kafka dial failed: %w", err)
		}
		defer conn.Close()

		if _, err := conn.Brokers(); err != nil {
			return fmt.Errorf("kafka metadata request failed: %w", err)
		}
		return nil
	}
}
