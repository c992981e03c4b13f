package kafka

import segkafka "github.com/segmentio/kafka-go"

// HeaderKind carries the notification kind ("progress" or "completion") so
// consumers can decode a message without inspecting its topic.
const HeaderKind = "countdown-kind"

// HeaderCarrier adapts a message's header slice to the OpenTelemetry
// propagation.TextMapCarrier interface.
type HeaderCarrier []segkafka.Header

func (c HeaderCarrier) Get(key string) string {
	for _, h := range c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set replaces any existing header with the same key.
func (c *HeaderCarrier) Set(key, value string) {
	kept := (*c)[:0]
	for _, h := range *c {
		if h.Key != key {
			kept = append(kept, h)
		}
	}
	*c = append(kept, segkafka.Header{Key: key, Value: []byte(value)})
}

func (c HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for _, h := range c {
		keys = append(keys, h.Key)
	}
	return keys
}
