package notify

import (
	"context"
	"fmt"

	segkafka "github.com/segmentio/kafka-go"

	"github.com/ramiqadoumi/go-countdown/internal/domain"
	"github.com/ramiqadoumi/go-countdown/internal/kafka"
)

const (
	TopicProgress  = "timers.progress"
	TopicCompleted = "timers.completed"
)

// KafkaSink publishes notifications keyed by timer id, so every event for
// one timer lands on the same partition in emission order.
type KafkaSink struct {
	producer kafka.Producer
	codec    Codec
}

// NewKafkaSink returns a sink publishing through producer. A nil codec means JSON.
func NewKafkaSink(producer kafka.Producer, codec Codec) *KafkaSink {
	if codec == nil {
		codec = JSON
	}
	return &KafkaSink{producer: producer, codec: codec}
}

func (s *KafkaSink) Progress(ctx context.Context, p domain.Progress) error {
	return s.publish(ctx, TopicProgress, KindProgress, p.TimerID, p)
}

func (s *KafkaSink) Completion(ctx context.Context, c domain.Completion) error {
	return s.publish(ctx, TopicCompleted, KindCompletion, c.TimerID, c)
}

func (s *KafkaSink) publish(ctx context.Context, topic, kind, timerID string, payload any) error {
	value, err := s.codec.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s for %s: %w", kind, timerID, err)
	}
	return s.producer.Publish(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(timerID),
		Value: value,
		Headers: []segkafka.Header{
			{Key: kafka.HeaderKind, Value: []byte(kind)},
			{Key: "content-type", Value: []byte(s.codec.ContentType())},
		},
	})
}

// Event is a decoded notification read back from a topic.
type Event struct {
	Kind       string
	Progress   *domain.Progress
	Completion *domain.Completion
}

// DecodeEvent reverses KafkaSink.publish. The codec is chosen from the
// message's content-type header, falling back to JSON.
func DecodeEvent(msg kafka.Message) (Event, error) {
	codec := JSON
	if msg.Header("content-type") == CBOR.ContentType() {
		codec = CBOR
	}
	kind := msg.Header(kafka.HeaderKind)
	if kind == "" {
		switch msg.Topic {
		case TopicProgress:
			kind = KindProgress
		case TopicCompleted:
			kind = KindCompletion
		}
	}

	switch kind {
	case KindProgress:
		var p domain.Progress
		if err := codec.Unmarshal(msg.Value, &p); err != nil {
			return Event{}, fmt.Errorf("decode progress: %w", err)
		}
		return Event{Kind: kind, Progress: &p}, nil
	case KindCompletion:
		var c domain.Completion
		if err := codec.Unmarshal(msg.Value, &c); err != nil {
			return Event{}, fmt.Errorf("decode completion: %w", err)
		}
		return Event{Kind: kind, Completion: &c}, nil
	default:
		return Event{}, fmt.Errorf("unknown notification kind %q on topic %s", kind, msg.Topic)
	}
}
