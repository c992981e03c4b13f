package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramiqadoumi/go-countdown/internal/postgres/migrations"
)

// CompletionRecord is one row of the completion history.
type CompletionRecord struct {
	ID         string
	TimerID    string
	DurationMs *int64
	FinishedAt time.Time
	RecordedAt time.Time
}

// CompletionRepository abstracts the completion audit trail.
type CompletionRepository interface {
	RecordCompletion(ctx context.Context, rec *CompletionRecord) error
	ListByTimer(ctx context.Context, timerID string, limit int) ([]*CompletionRecord, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps a pgxpool with the CompletionRepository interface.
func NewRepository(pool *pgxpool.Pool) CompletionRepository {
	return &repository{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

// Migrate applies every embedded migration. Each file is idempotent.
// report, if non-nil, is called after each file.
func Migrate(ctx context.Context, pool *pgxpool.Pool, report func(file string)) error {
	for _, f := range migrations.Files {
		sql, err := migrations.FS.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("execute migration %s: %w", f, err)
		}
		if report != nil {
			report(f)
		}
	}
	return nil
}

func (r *repository) RecordCompletion(ctx context.Context, rec *CompletionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO timer_completions
			(id, timer_id, duration_ms, finished_at, recorded_at)
		VALUES
			($1, $2, $3, $4, $5)
	`, rec.ID, rec.TimerID, rec.DurationMs, rec.FinishedAt, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("record completion for timer %s: %w", rec.TimerID, err)
	}
	return nil
}

func (r *repository) ListByTimer(ctx context.Context, timerID string, limit int) ([]*CompletionRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, timer_id, duration_ms, finished_at, recorded_at
		FROM timer_completions
		WHERE timer_id = $1
		ORDER BY finished_at DESC
		LIMIT $2
	`, timerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list completions for timer %s: %w", timerID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*CompletionRecord, error) {
		var rec CompletionRecord
		if err := row.Scan(&rec.ID, &rec.TimerID, &rec.DurationMs, &rec.FinishedAt, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		return &rec, nil
	})
}
