package notify_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/ramiqadoumi/go-countdown/internal/domain"
	"github.com/ramiqadoumi/go-countdown/internal/kafka"
	"github.com/ramiqadoumi/go-countdown/internal/postgres"
)

type mockStateStore struct{ mock.Mock }

func (m *mockStateStore) SetProgress(ctx context.Context, p domain.Progress) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockStateStore) GetProgress(ctx context.Context, id string) (domain.Progress, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Progress), args.Error(1)
}

func (m *mockStateStore) SetCompletion(ctx context.Context, c domain.Completion) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockStateStore) GetCompletion(ctx context.Context, id string) (domain.Completion, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Completion), args.Error(1)
}

func (m *mockStateStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockRepository struct{ mock.Mock }

func (m *mockRepository) RecordCompletion(ctx context.Context, rec *postgres.CompletionRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockRepository) ListByTimer(ctx context.Context, id string, limit int) ([]*postgres.CompletionRecord, error) {
	args := m.Called(ctx, id, limit)
	recs, _ := args.Get(0).([]*postgres.CompletionRecord)
	return recs, args.Error(1)
}

// fakeProducer records published messages.
type fakeProducer struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (f *fakeProducer) Publish(_ context.Context, msg kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeProducer) Close() error { return nil }
