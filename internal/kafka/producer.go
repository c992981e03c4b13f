package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// Producer publishes notification messages.
type Producer interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

type producer struct {
	writer *kafka.Writer
}

// ProducerOption tunes the underlying writer.
type ProducerOption func(*kafka.Writer)

// WithBatchTimeout bounds how long a message may wait for a batch to fill.
// Progress notifications are latency-sensitive, so the default is short.
func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(w *kafka.Writer) { w.BatchTimeout = d }
}

// WithRequiredAcks overrides the acknowledgement level.
func WithRequiredAcks(acks kafka.RequiredAcks) ProducerOption {
	return func(w *kafka.Writer) { w.RequiredAcks = acks }
}

// NewProducer creates a producer connected to the given brokers.
func NewProducer(brokers []string, opts ...ProducerOption) Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{}, // same timer id → same partition → ordered
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            3,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		ReadTimeout:            5 * time.Second,
		AllowAutoTopicCreation: true,
	}
	for _, opt := range opts {
		opt(w)
	}
	return &producer{writer: w}
}

func (p *producer) Publish(ctx context.Context, msg Message) error {
	headers := make(HeaderCarrier, 0, len(msg.Headers)+2)
	for _, h := range msg.Headers {
		headers = append(headers, h)
	}
	otel.GetTextMapPropagator().Inject(ctx, &headers)

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: []kafka.Header(headers),
		Time:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("kafka publish to %s: %w", msg.Topic, err)
	}
	return nil
}

func (p *producer) Close() error {
	return p.writer.Close()
}
