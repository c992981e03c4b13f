package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// Message is the subset of a Kafka message the countdown services use.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Offset  int64
	Headers []kafka.Header
}

// Header returns the first header value for key, or "".
func (m Message) Header(key string) string {
	return HeaderCarrier(m.Headers).Get(key)
}

// HandlerFunc processes a single message. Returning an error skips the
// offset commit so the message is redelivered.
type HandlerFunc func(ctx context.Context, msg Message) error

// Consumer reads notification topics.
type Consumer interface {
	Subscribe(ctx context.Context, handler HandlerFunc) error
	Close() error
}

type consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

// NewConsumer joins groupID and reads every topic in topics. With fromStart
// false, a fresh group begins at the newest offset, which is what a live
// tail wants.
func NewConsumer(brokers, topics []string, groupID string, fromStart bool, logger *slog.Logger) Consumer {
	start := kafka.LastOffset
	if fromStart {
		start = kafka.FirstOffset
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupTopics:    topics,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       1e6,
		MaxWait:        250 * time.Millisecond,
		CommitInterval: 0, // commit after each handled message
		StartOffset:    start,
	})
	return &consumer{reader: r, logger: logger}
}

// Subscribe reads until ctx is cancelled, committing each offset only after
// the handler succeeds.
func (c *consumer) Subscribe(ctx context.Context, handler HandlerFunc) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}

		carrier := HeaderCarrier(m.Headers)
		msgCtx := otel.GetTextMapPropagator().Extract(ctx, &carrier)

		msg := Message{Topic: m.Topic, Key: m.Key, Value: m.Value, Offset: m.Offset, Headers: m.Headers}
		if err := handler(msgCtx, msg); err != nil {
			c.logger.Error("message handler failed, skipping commit",
				slog.String("topic", m.Topic),
				slog.Int64("offset", m.Offset),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit kafka offset",
				slog.String("topic", m.Topic),
				slog.Int64("offset", m.Offset),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (c *consumer) Close() error {
	return c.reader.Close()
}
