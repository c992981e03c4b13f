package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ramiqadoumi/go-countdown/internal/domain"
)

const defaultStateTTL = 24 * time.Hour

func progressKey(timerID string) string   { return "countdown:progress:" + timerID }
func completionKey(timerID string) string { return "countdown:completion:" + timerID }

// StateStore mirrors the latest notification of every timer into Redis so
// processes other than the engine can read live countdown state.
type StateStore interface {
	SetProgress(ctx context.Context, p domain.Progress) error
	GetProgress(ctx context.Context, timerID string) (domain.Progress, error)
	SetCompletion(ctx context.Context, c domain.Completion) error
	GetCompletion(ctx context.Context, timerID string) (domain.Completion, error)
	Ping(ctx context.Context) error
}

type stateStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStateStore creates a Redis-backed StateStore. Entries expire after ttl
// (24h when ttl is zero) so deleted timers do not linger forever.
func NewStateStore(client *redis.Client, ttl time.Duration) StateStore {
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &stateStore{client: client, ttl: ttl}
}

// NewClient creates a Redis client with the timeouts every countdown
// service uses.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

// SetProgress stores the latest progress. A new run clears any completion
// recorded for the previous one, in the same transaction.
func (s *stateStore) SetProgress(ctx context.Context, p domain.Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, progressKey(p.TimerID), data, s.ttl)
	if p.Running {
		pipe.Del(ctx, completionKey(p.TimerID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set progress for %s: %w", p.TimerID, err)
	}
	return nil
}

func (s *stateStore) GetProgress(ctx context.Context, timerID string) (domain.Progress, error) {
	var p domain.Progress
	if err := s.getJSON(ctx, progressKey(timerID), timerID, &p); err != nil {
		return domain.Progress{}, err
	}
	return p, nil
}

// SetCompletion records the completion and marks the mirrored progress as
// finished, so readers never see a running timer that already completed.
func (s *stateStore) SetCompletion(ctx context.Context, c domain.Completion) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal completion: %w", err)
	}

	prev, err := s.GetProgress(ctx, c.TimerID)
	var notFound *domain.TimerNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, completionKey(c.TimerID), data, s.ttl)
	if err == nil {
		prev.RemainingMs = 0
		prev.Running = false
		if done, mErr := json.Marshal(prev); mErr == nil {
			pipe.Set(ctx, progressKey(c.TimerID), done, s.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set completion for %s: %w", c.TimerID, err)
	}
	return nil
}

func (s *stateStore) GetCompletion(ctx context.Context, timerID string) (domain.Completion, error) {
	var c domain.Completion
	if err := s.getJSON(ctx, completionKey(timerID), timerID, &c); err != nil {
		return domain.Completion{}, err
	}
	return c, nil
}

func (s *stateStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *stateStore) getJSON(ctx context.Context, key, timerID string, v any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &domain.TimerNotFoundError{TimerID: timerID}
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}
