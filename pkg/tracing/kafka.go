package tracing

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// InjectKafkaHeaders stamps the current span context onto the message
// headers so the consumer side can continue the trace.
func InjectKafkaHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := kafkaHeaderCarrier(headers)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)
	return carrier
}

// SpanFromKafkaHeaders resumes the trace carried in the message headers and
// opens a consumer-side span under it.
func SpanFromKafkaHeaders(ctx context.Context, operation string, headers []kafka.Header) (context.Context, trace.Span) {
	carrier := kafkaHeaderCarrier(headers)
	ctx = otel.GetTextMapPropagator().Extract(ctx, &carrier)
	return Tracer("ratefeed-kafka").Start(ctx, operation)
}

// kafkaHeaderCarrier adapts kafka headers to the OTel TextMapCarrier. Set
// uses a pointer receiver, appending a missing key must grow the slice the
// caller reads back.
type kafkaHeaderCarrier []kafka.Header

func (c *kafkaHeaderCarrier) Get(key string) string {
	for _, h := range *c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *kafkaHeaderCarrier) Set(key, value string) {
	for i, h := range *c {
		if h.Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{
		Key:   key,
		Value: []byte(value),
	})
}

func (c *kafkaHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(*c))
	for _, h := range *c {
		keys = append(keys, h.Key)
	}
	return keys
}
