package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/ramiqadoumi/go-countdown/internal/domain"
	"github.com/ramiqadoumi/go-countdown/pkg/telemetry"
)

// Named pairs a Sink with the label it is counted under.
type Named struct {
	Name string
	Sink Sink
}

// Multi fans a notification out to every sink in order. A failing sink does
// not stop delivery to the ones after it; all failures are joined.
type Multi struct {
	sinks []Named
}

func NewMulti(sinks ...Named) *Multi {
	return &Multi{sinks: sinks}
}

// Len reports how many sinks are attached.
func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) Progress(ctx context.Context, p domain.Progress) error {
	return m.each(KindProgress, func(s Sink) error { return s.Progress(ctx, p) })
}

func (m *Multi) Completion(ctx context.Context, c domain.Completion) error {
	return m.each(KindCompletion, func(s Sink) error { return s.Completion(ctx, c) })
}

func (m *Multi) each(kind string, deliver func(Sink) error) error {
	var errs []error
	for _, n := range m.sinks {
		if err := deliver(n.Sink); err != nil {
			telemetry.NotifyFailures.WithLabelValues(n.Name, kind).Inc()
			errs = append(errs, fmt.Errorf("%s sink: %w", n.Name, err))
			continue
		}
		telemetry.NotifyDelivered.WithLabelValues(n.Name, kind).Inc()
	}
	return errors.Join(errs...)
}
