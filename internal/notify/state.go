package notify

import (
	"context"

	"github.com/ramiqadoumi/go-countdown/internal/domain"
	"github.com/ramiqadoumi/go-countdown/internal/redis"
)

// StateSink mirrors the latest notification of every timer into a StateStore.
type StateSink struct {
	store redis.StateStore
}

func NewStateSink(store redis.StateStore) *StateSink {
	return &StateSink{store: store}
}

func (s *StateSink) Progress(ctx context.Context, p domain.Progress) error {
	return s.store.SetProgress(ctx, p)
}

func (s *StateSink) Completion(ctx context.Context, c domain.Completion) error {
	return s.store.SetCompletion(ctx, c)
}
