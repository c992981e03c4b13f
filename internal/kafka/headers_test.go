package kafka

import (
	"testing"

	segkafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestHeaderCarrier_SetReplaces(t *testing.T) {
	c := HeaderCarrier{{Key: HeaderKind, Value: []byte("progress")}}
	c.Set(HeaderKind, "completion")
	c.Set("traceparent", "00-abc-def-01")

	assert.Equal(t, "completion", c.Get(HeaderKind))
	assert.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	assert.ElementsMatch(t, []string{HeaderKind, "traceparent"}, c.Keys())
}

func TestMessage_Header(t *testing.T) {
	msg := Message{Headers: []segkafka.Header{{Key: HeaderKind, Value: []byte("progress")}}}
	assert.Equal(t, "progress", msg.Header(HeaderKind))
	assert.Equal(t, "", msg.Header("missing"))
}
