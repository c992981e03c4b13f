package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ramiqadoumi/go-countdown/internal/domain"
	"github.com/ramiqadoumi/go-countdown/internal/postgres"
)

// DefaultHistoryTracked caps how many running timers a HistorySink remembers
// durations for.
const DefaultHistoryTracked = 4096

// HistorySink appends every completion to the Postgres audit trail.
//
// Completions carry no duration, so the sink remembers the duration from the
// last progress it saw for each running timer and stores it alongside. Every
// start and resume emits a running progress before the countdown can
// complete, so an entry is dropped as soon as the timer is seen stopped.
// Timers deleted while running emit nothing; the table is capped to keep
// those from accumulating, and an evicted timer is recorded without a
// duration.
type HistorySink struct {
	repo       postgres.CompletionRepository
	maxTracked int

	mu        sync.Mutex
	durations map[string]int64
}

// HistoryOption configures a HistorySink.
type HistoryOption func(*HistorySink)

// WithMaxTracked overrides DefaultHistoryTracked.
func WithMaxTracked(n int) HistoryOption {
	return func(s *HistorySink) {
		if n > 0 {
			s.maxTracked = n
		}
	}
}

func NewHistorySink(repo postgres.CompletionRepository, opts ...HistoryOption) *HistorySink {
	s := &HistorySink{
		repo:       repo,
		maxTracked: DefaultHistoryTracked,
		durations:  make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HistorySink) Progress(_ context.Context, p domain.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !p.Running {
		delete(s.durations, p.TimerID)
		return nil
	}
	if _, ok := s.durations[p.TimerID]; !ok && len(s.durations) >= s.maxTracked {
		for id := range s.durations {
			delete(s.durations, id)
			break
		}
	}
	s.durations[p.TimerID] = p.DurationMs
	return nil
}

// Tracked reports how many timers currently have a remembered duration.
func (s *HistorySink) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.durations)
}

func (s *HistorySink) Completion(ctx context.Context, c domain.Completion) error {
	finished, err := time.Parse(domain.TimestampLayout, c.FinishedAt)
	if err != nil {
		return fmt.Errorf("parse finished_at %q: %w", c.FinishedAt, err)
	}

	rec := &postgres.CompletionRecord{TimerID: c.TimerID, FinishedAt: finished}
	s.mu.Lock()
	if d, ok := s.durations[c.TimerID]; ok {
		rec.DurationMs = &d
		delete(s.durations, c.TimerID)
	}
	s.mu.Unlock()

	return s.repo.RecordCompletion(ctx, rec)
}
