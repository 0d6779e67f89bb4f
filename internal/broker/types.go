package broker

import (
	"context"
	"time"

	"ratefeed/pkg/models"
)

// DeliveryResult reports where the broker placed a published snapshot.
type DeliveryResult struct {
	Topic     string
	Partition int
	Offset    int64
}

// Message is one raw record fetched from a topic. The payload stays opaque
// to the transport layer, handlers own decoding.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time
}

type Producer interface {
	Publish(ctx context.Context, topic string, snapshot *models.RateSnapshot) (DeliveryResult, error)
	Close() error
	SetServiceName(name string)
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

// HandlerFunc processes one fetched message. Nil acknowledges the message, a
// fatal error drops it (DLQ when configured), any other error is retried in
// place without releasing the offset.
type HandlerFunc func(ctx context.Context, msg Message) error
