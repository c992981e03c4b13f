package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/go-countdown/internal/domain"
	"github.com/ramiqadoumi/go-countdown/internal/notify"
	"github.com/ramiqadoumi/go-countdown/pkg/clock"
)

// ── fakes ────────────────────────────────────────────────────────────────────

type recorder struct {
	mu          sync.Mutex
	progress    []domain.Progress
	completions []domain.Completion
	err         error
}

func (r *recorder) Progress(_ context.Context, p domain.Progress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
	return r.err
}

func (r *recorder) Completion(_ context.Context, c domain.Completion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completions = append(r.completions, c)
	return r.err
}

func (r *recorder) progressFor(id string) []domain.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Progress
	for _, p := range r.progress {
		if p.TimerID == id {
			out = append(out, p)
		}
	}
	return out
}

func (r *recorder) completionsFor(id string) []domain.Completion {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Completion
	for _, c := range r.completions {
		if c.TimerID == id {
			out = append(out, c)
		}
	}
	return out
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.progress) + len(r.completions)
}

// ── helpers ───────────────────────────────────────────────────────────────────

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var epoch = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func newFakeEngine(t *testing.T, opts ...Option) (*Engine, *recorder, *clock.Fake) {
	t.Helper()
	rec := &recorder{}
	clk := clock.NewFake(epoch)
	opts = append([]Option{WithClock(clk), WithLogger(discardLogger)}, opts...)
	e := New(rec, opts...)
	t.Cleanup(e.Close)
	return e, rec, clk
}

// waitTickers blocks until n scheduler goroutines have armed their tickers,
// so that a following Advance is guaranteed to reach them.
func waitTickers(t *testing.T, clk *clock.Fake, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return clk.Tickers() == n },
		time.Second, time.Millisecond, "expected %d live tickers", n)
}

func waitProgress(t *testing.T, r *recorder, id string, n int) []domain.Progress {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.progressFor(id)) >= n },
		time.Second, time.Millisecond, "expected %d progress notifications for %s", n, id)
	return r.progressFor(id)
}

func mustGet(t *testing.T, e *Engine, id string) domain.Timer {
	t.Helper()
	tm, err := e.Get(id)
	require.NoError(t, err)
	return tm
}

// ── create / list / get ───────────────────────────────────────────────────────

func TestCreate_IdleSnapshot(t *testing.T) {
	for _, d := range []int64{0, 1, 3000, 25 * 60 * 1000} {
		t.Run(fmt.Sprint(d), func(t *testing.T) {
			e, _, _ := newFakeEngine(t)
			tm, err := e.Create("t1", "Work", d)
			require.NoError(t, err)

			assert.Equal(t, d, tm.DurationMs)
			assert.Equal(t, d, tm.RemainingMs)
			assert.False(t, tm.Running)
			assert.False(t, tm.Completed)
			assert.Equal(t, "2026-10-19T09:00:00Z", tm.CreatedAt)
			assert.Equal(t, domain.StateIdle, tm.State())
		})
	}
}

func TestCreate_DuplicateID(t *testing.T) {
	e, _, _ := newFakeEngine(t)
	_, err := e.Create("t1", "Work", 3000)
	require.NoError(t, err)

	_, err = e.Create("t1", "Other", 9000)
	var dup *domain.DuplicateTimerError
	require.True(t, errors.As(err, &dup), "expected DuplicateTimerError, got %T", err)
	assert.Equal(t, "t1", dup.TimerID)

	tm := mustGet(t, e, "t1")
	assert.Equal(t, "Work", tm.Name, "original record must be unchanged")
	assert.Equal(t, int64(3000), tm.DurationMs)
}

func TestCreate_MaxTimers(t *testing.T) {
	e, _, _ := newFakeEngine(t, WithMaxTimers(1))
	_, err := e.Create("only", "Solo", 1000)
	require.NoError(t, err)

	_, err = e.Create("second", "Nope", 1000)
	var limit *domain.TimerLimitError
	require.True(t, errors.As(err, &limit), "expected TimerLimitError, got %T", err)
	assert.Equal(t, 1, limit.Limit)

	require.NoError(t, e.Delete("only"))
	_, err = e.Create("second", "Now fits", 1000)
	require.NoError(t, err)
}

func TestCreate_NegativeDurationAccepted(t *testing.T) {
	e, _, _ := newFakeEngine(t)
	tm, err := e.Create("neg", "Backwards", -500)
	require.NoError(t, err)
	assert.Equal(t, int64(-500), tm.RemainingMs)
}

func TestList_CreationOrder(t *testing.T) {
	e, _, _ := newFakeEngine(t)
	for _, id := range []string{"c", "a", "b"} {
		_, err := e.Create(id, id, 1000)
		require.NoError(t, err)
	}
	var ids []string
	for _, tm := range e.List() {
		ids = append(ids, tm.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)

	require.NoError(t, e.Delete("a"))
	assert.Len(t, e.List(), 2)
}

func TestOperations_UnknownID(t *testing.T) {
	e, _, _ := newFakeEngine(t)
	ops := map[string]func(string) error{
		"start":  e.Start,
		"pause":  e.Pause,
		"resume": e.Resume,
		"reset":  e.Reset,
		"delete": e.Delete,
		"get":    func(id string) error { _, err := e.Get(id); return err },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op("ghost")
			var notFound *domain.TimerNotFoundError
			require.True(t, errors.As(err, &notFound), "expected TimerNotFoundError, got %T", err)
			assert.Equal(t, "ghost", notFound.TimerID)
		})
	}
}

// ── state machine ─────────────────────────────────────────────────────────────

func TestStart_EmitsImmediateProgress(t *testing.T) {
	e, rec, _ := newFakeEngine(t)
	_, _ = e.Create("t1", "Work", 3000)

	require.NoError(t, e.Start("t1"))

	got := rec.progressFor("t1")
	require.Len(t, got, 1, "start must emit before returning")
	assert.Equal(t, domain.Progress{TimerID: "t1", RemainingMs: 3000, DurationMs: 3000, Running: true}, got[0])
	assert.True(t, mustGet(t, e, "t1").Running)
}

func TestTick_DerivesRemainingFromDeadline(t *testing.T) {
	e, rec, clk := newFakeEngine(t)
	_, _ = e.Create("t1", "Work", 3000)
	require.NoError(t, e.Start("t1"))
	waitTickers(t, clk, 1)

	// A late tick still reports the true remaining time, not duration-minus-one-tick.
	clk.Advance(1300 * time.Millisecond)
	got := waitProgress(t, rec, "t1", 2)
	assert.Equal(t, int64(1700), got[1].RemainingMs)
	assert.True(t, got[1].Running)
	assert.Equal(t, int64(1700), mustGet(t, e, "t1").RemainingMs)
}

func TestScenario_StartPauseResumeComplete(t *testing.T) {
	e, rec, clk := newFakeEngine(t)
	_, err := e.Create("t1", "Work", 3000)
	require.NoError(t, err)

	require.NoError(t, e.Start("t1"))
	waitTickers(t, clk, 1)
	clk.Advance(time.Second)
	got := waitProgress(t, rec, "t1", 2)
	assert.Equal(t, int64(2000), got[1].RemainingMs)

	clk.Advance(500 * time.Millisecond)
	require.NoError(t, e.Pause("t1"))
	assert.Equal(t, 0, clk.Tickers(), "pause must stop the scheduler before returning")

	paused := mustGet(t, e, "t1")
	assert.Equal(t, int64(1500), paused.RemainingMs)
	assert.False(t, paused.Running)
	assert.Equal(t, domain.StatePaused, paused.State())
	last := rec.progressFor("t1")
	assert.Equal(t, domain.Progress{TimerID: "t1", RemainingMs: 1500, DurationMs: 3000, Running: false}, last[len(last)-1])

	// Frozen while paused.
	clk.Advance(10 * time.Second)
	assert.Equal(t, int64(1500), mustGet(t, e, "t1").RemainingMs)

	require.NoError(t, e.Resume("t1"))
	waitTickers(t, clk, 1)
	clk.Advance(time.Second)
	got = waitProgress(t, rec, "t1", 5)
	assert.Equal(t, int64(500), got[4].RemainingMs)

	clk.Advance(time.Second)
	require.Eventually(t, func() bool { return len(rec.completionsFor("t1")) == 1 },
		time.Second, time.Millisecond)

	done := mustGet(t, e, "t1")
	assert.True(t, done.Completed)
	assert.False(t, done.Running)
	assert.Equal(t, int64(0), done.RemainingMs)
	assert.Equal(t, domain.FormatTimestamp(epoch.Add(13500*time.Millisecond)), rec.completionsFor("t1")[0].FinishedAt)

	waitTickers(t, clk, 0)
	assert.Len(t, rec.progressFor("t1"), 5, "no progress accompanies the completion")
}

func TestZeroDuration_CompletesOnFirstTick(t *testing.T) {
	e, rec, clk := newFakeEngine(t)
	_, _ = e.Create("z", "Instant", 0)
	require.NoError(t, e.Start("z"))
	waitTickers(t, clk, 1)

	clk.Advance(time.Second)
	require.Eventually(t, func() bool { return len(rec.completionsFor("z")) == 1 },
		time.Second, time.Millisecond)
	waitTickers(t, clk, 0)

	clk.Advance(5 * time.Second)
	assert.Len(t, rec.completionsFor("z"), 1, "exactly one completion")
	assert.Len(t, rec.progressFor("z"), 1, "only the immediate start progress")
}

func TestNegativeDuration_ClampedOnStart(t *testing.T) {
	e, rec, clk := newFakeEngine(t)
	_, _ = e.Create("neg", "Backwards", -500)
	require.NoError(t, e.Start("neg"))
	assert.Equal(t, int64(0), rec.progressFor("neg")[0].RemainingMs)

	waitTickers(t, clk, 1)
	clk.Advance(time.Second)
	require.Eventually(t, func() bool { return len(rec.completionsFor("neg")) == 1 },
		time.Second, time.Millisecond)

	tm := mustGet(t, e, "neg")
	assert.True(t, tm.Completed)
	assert.Equal(t, int64(0), tm.RemainingMs)
}

func TestHugeDuration_KeepsRunning(t *testing.T) {
	e, rec, clk := newFakeEngine(t)
	_, _ = e.Create("long", "Forever", math.MaxInt64)
	require.NoError(t, e.Start("long"))
	waitTickers(t, clk, 1)
	clk.Advance(time.Second)

	got := waitProgress(t, rec, "long", 2)
	assert.Positive(t, got[1].RemainingMs)
	assert.Empty(t, rec.completionsFor("long"))
	assert.True(t, mustGet(t, e, "long").Running)
}

func TestPause_NotRunningIsNoop(t *testing.T) {
	e, rec, _ := newFakeEngine(t)
	_, _ = e.Create("t1", "Work", 3000)
	require.NoError(t, e.Pause("t1"))
	assert.Empty(t, rec.progressFor("t1"), "no-op pause emits nothing")
}

func TestResume_RunningIsNoop(t *testing.T) {
	e, rec, clk := newFakeEngine(t)
	_, _ = e.Create("t1", "Work", 5000)
	require.NoError(t, e.Start("t1"))
	waitTickers(t, clk, 1)

	require.NoError(t, e.Resume("t1"))
	require.NoError(t, e.Resume("t1"))
	assert.Equal(t, 1, clk.Tickers(), "resume must not spawn a second scheduler")
	assert.Len(t, rec.progressFor("t1"), 1)

	clk.Advance(time.Second)
	waitProgress(t, rec, "t1", 2)
	assert.Never(t, func() bool { return len(rec.progressFor("t1")) > 2 },
		50*time.Millisecond, 5*time.Millisecond, "one tick must yield one progress")
}

func TestResume_CompletedFallsBackToDuration(t *testing.T) {
	e, rec, clk := newFakeEngine(t)
	_, _ = e.Create("t1", "Short", 1000)
	require.NoError(t, e.Start("t1"))
	waitTickers(t, clk, 1)
	clk.Advance(time.Second)
	require.Eventually(t, func() bool { return len(rec.completionsFor("t1")) == 1 },
		time.Second, time.Millisecond)
	waitTickers(t, clk, 0)

	require.NoError(t, e.Resume("t1"))
	tm := mustGet(t, e, "t1")
	assert.True(t, tm.Running)
	assert.False(t, tm.Completed)
	assert.Equal(t, int64(1000), tm.RemainingMs)
}

func TestStart_CompletedRestartsFromRemaining(t *testing.T) {
	e, rec, clk := newFakeEngine(t)
	_, _ = e.Create("t1", "Short", 1000)
	require.NoError(t, e.Start("t1"))
	waitTickers(t, clk, 1)
	clk.Advance(time.Second)
	require.Eventually(t, func() bool { return len(rec.completionsFor("t1")) == 1 },
		time.Second, time.Millisecond)
	waitTickers(t, clk, 0)

	require.NoError(t, e.Start("t1"))
	waitTickers(t, clk, 1)
	clk.Advance(time.Second)
	require.Eventually(t, func() bool { return len(rec.completionsFor("t1")) == 2 },
		time.Second, time.Millisecond)
}

func TestStart_RestartInPlace(t *testing.T) {
	e, rec, clk := newFakeEngine(t)
	_, _ = e.Create("t1", "Work", 3000)
	require.NoError(t, e.Start("t1"))
	waitTickers(t, clk, 1)
	clk.Advance(time.Second)
	waitProgress(t, rec, "t1", 2)

	require.NoError(t, e.Start("t1"))
	waitTickers(t, clk, 1)
	got := rec.progressFor("t1")
	require.Len(t, got, 3)
	assert.Equal(t, int64(2000), got[2].RemainingMs, "restart continues from the remaining time")

	clk.Advance(time.Second)
	got = waitProgress(t, rec, "t1", 4)
	assert.Equal(t, int64(1000), got[3].RemainingMs)
	assert.Never(t, func() bool { return len(rec.progressFor("t1")) > 4 },
		50*time.Millisecond, 5*time.Millisecond, "the replaced scheduler must be gone")
}

func TestReset_RestoresDurationFromAnyState(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, e *Engine, rec *recorder, clk *clock.Fake)
	}{
		{"idle", func(*testing.T, *Engine, *recorder, *clock.Fake) {}},
		{"running", func(t *testing.T, e *Engine, rec *recorder, clk *clock.Fake) {
			require.NoError(t, e.Start("t1"))
			waitTickers(t, clk, 1)
			clk.Advance(time.Second)
			waitProgress(t, rec, "t1", 2)
		}},
		{"paused", func(t *testing.T, e *Engine, _ *recorder, clk *clock.Fake) {
			require.NoError(t, e.Start("t1"))
			clk.Advance(700 * time.Millisecond)
			require.NoError(t, e.Pause("t1"))
		}},
		{"completed", func(t *testing.T, e *Engine, rec *recorder, clk *clock.Fake) {
			require.NoError(t, e.Start("t1"))
			waitTickers(t, clk, 1)
			clk.Advance(3 * time.Second)
			require.Eventually(t, func() bool { return len(rec.completionsFor("t1")) == 1 },
				time.Second, time.Millisecond)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, rec, clk := newFakeEngine(t)
			_, _ = e.Create("t1", "Work", 3000)
			tt.setup(t, e, rec, clk)

			require.NoError(t, e.Reset("t1"))
			assert.Equal(t, 0, clk.Tickers())

			tm := mustGet(t, e, "t1")
			assert.Equal(t, int64(3000), tm.RemainingMs)
			assert.False(t, tm.Running)
			assert.False(t, tm.Completed)

			got := rec.progressFor("t1")
			assert.Equal(t, domain.Progress{TimerID: "t1", RemainingMs: 3000, DurationMs: 3000}, got[len(got)-1])
		})
	}
}

func TestDelete_RunningTimerGoesSilent(t *testing.T) {
	e, rec, clk := newFakeEngine(t)
	_, _ = e.Create("t1", "Work", 3000)
	require.NoError(t, e.Start("t1"))
	waitTickers(t, clk, 1)

	require.NoError(t, e.Delete("t1"))
	assert.Equal(t, 0, clk.Tickers(), "delete must stop the scheduler before returning")
	before := rec.total()

	clk.Advance(10 * time.Second)
	assert.Never(t, func() bool { return rec.total() != before },
		50*time.Millisecond, 5*time.Millisecond, "no notification after delete")

	_, err := e.Get("t1")
	var notFound *domain.TimerNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestDelete_AbortsInFlightTickDelivery(t *testing.T) {
	entered := make(chan struct{})
	aborted := make(chan error, 1)
	sink := notify.Funcs{OnProgress: func(ctx context.Context, p domain.Progress) error {
		if p.RemainingMs == p.DurationMs {
			return nil
		}
		close(entered)
		<-ctx.Done()
		aborted <- ctx.Err()
		return ctx.Err()
	}}
	clk := clock.NewFake(epoch)
	e := New(sink, WithClock(clk), WithLogger(discardLogger), WithNotifyTimeout(time.Minute))
	t.Cleanup(e.Close)

	_, _ = e.Create("t1", "Work", 5000)
	require.NoError(t, e.Start("t1"))
	waitTickers(t, clk, 1)
	clk.Advance(time.Second)

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("tick delivery never reached the sink")
	}

	started := time.Now()
	require.NoError(t, e.Delete("t1"))
	assert.Less(t, time.Since(started), time.Second, "delete must not wait out the notify timeout")
	assert.ErrorIs(t, <-aborted, context.Canceled)
	assert.Equal(t, 0, clk.Tickers())
}

func TestPause_AbortsInFlightTickDelivery(t *testing.T) {
	entered := make(chan struct{}, 1)
	sink := notify.Funcs{OnProgress: func(ctx context.Context, p domain.Progress) error {
		if !p.Running || p.RemainingMs == p.DurationMs {
			return nil
		}
		entered <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}}
	clk := clock.NewFake(epoch)
	e := New(sink, WithClock(clk), WithLogger(discardLogger), WithNotifyTimeout(time.Minute))
	t.Cleanup(e.Close)

	_, _ = e.Create("t1", "Work", 5000)
	require.NoError(t, e.Start("t1"))
	waitTickers(t, clk, 1)
	clk.Advance(time.Second)
	<-entered

	started := time.Now()
	require.NoError(t, e.Pause("t1"))
	assert.Less(t, time.Since(started), time.Second)

	tm := mustGet(t, e, "t1")
	assert.False(t, tm.Running)
	assert.Equal(t, int64(4000), tm.RemainingMs)
}

func TestSinkErrors_DoNotFailTransitions(t *testing.T) {
	e, rec, clk := newFakeEngine(t)
	rec.err = errors.New("sink unavailable")
	_, _ = e.Create("t1", "Work", 1000)

	require.NoError(t, e.Start("t1"))
	assert.True(t, mustGet(t, e, "t1").Running)

	waitTickers(t, clk, 1)
	clk.Advance(time.Second)
	require.Eventually(t, func() bool { return mustGet(t, e, "t1").Completed },
		time.Second, time.Millisecond)
}

func TestClose_StopsEverySchedulerAndFreezes(t *testing.T) {
	rec := &recorder{}
	clk := clock.NewFake(epoch)
	e := New(rec, WithClock(clk), WithLogger(discardLogger))
	for _, id := range []string{"a", "b", "c"} {
		_, _ = e.Create(id, id, 5000)
		require.NoError(t, e.Start(id))
	}
	waitTickers(t, clk, 3)
	clk.Advance(1200 * time.Millisecond)

	e.Close()
	assert.Equal(t, 0, clk.Tickers())
	for _, tm := range e.List() {
		assert.False(t, tm.Running)
		assert.Equal(t, int64(3800), tm.RemainingMs)
	}
}

func TestNew_NilSinkDiscards(t *testing.T) {
	e := New(nil, WithClock(clock.NewFake(epoch)), WithLogger(discardLogger))
	_, _ = e.Create("t1", "Work", 1000)
	require.NoError(t, e.Start("t1"))
	e.Close()
}

// ── real clock ────────────────────────────────────────────────────────────────

func TestRealClock_CountsDownAndCompletes(t *testing.T) {
	rec := &recorder{}
	e := New(rec, WithTickInterval(100*time.Millisecond), WithLogger(discardLogger))
	defer e.Close()

	_, err := e.Create("t1", "Work", 300)
	require.NoError(t, err)
	require.NoError(t, e.Start("t1"))

	got := waitProgress(t, rec, "t1", 2)
	assert.Greater(t, got[1].RemainingMs, int64(100))
	assert.Less(t, got[1].RemainingMs, int64(300))

	require.NoError(t, e.Pause("t1"))
	frozen := mustGet(t, e, "t1").RemainingMs
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, frozen, mustGet(t, e, "t1").RemainingMs)

	require.NoError(t, e.Resume("t1"))
	require.Eventually(t, func() bool { return len(rec.completionsFor("t1")) == 1 },
		2*time.Second, 10*time.Millisecond)

	tm := mustGet(t, e, "t1")
	assert.True(t, tm.Completed)
	assert.Equal(t, int64(0), tm.RemainingMs)
}

func TestRealClock_ConcurrentTimers(t *testing.T) {
	rec := &recorder{}
	e := New(rec, WithTickInterval(5*time.Millisecond), WithLogger(discardLogger))
	defer e.Close()

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("t%02d", i)
		_, err := e.Create(id, id, 500)
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Start(id)
			_ = e.Pause(id)
			_ = e.Resume(id)
			_ = e.List()
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		for i := 0; i < n; i++ {
			if len(rec.completionsFor(fmt.Sprintf("t%02d", i))) != 1 {
				return false
			}
		}
		return true
	}, 3*time.Second, 10*time.Millisecond)

	for i := 0; i < n; i++ {
		id := fmt.Sprintf("t%02d", i)
		var prev int64 = 1 << 62
		for _, p := range rec.progressFor(id) {
			if p.Running {
				assert.LessOrEqual(t, p.RemainingMs, prev, "remaining must never increase for %s", id)
				prev = p.RemainingMs
			}
		}
	}
}

func TestRealClock_DeleteRacesTicks(t *testing.T) {
	rec := &recorder{}
	e := New(rec, WithTickInterval(time.Millisecond), WithLogger(discardLogger))
	defer e.Close()

	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("d%02d", i)
		_, _ = e.Create(id, id, 10_000)
		require.NoError(t, e.Start(id))
		time.Sleep(time.Duration(i%3) * time.Millisecond)
		require.NoError(t, e.Delete(id))

		after := len(rec.progressFor(id))
		time.Sleep(3 * time.Millisecond)
		assert.Equal(t, after, len(rec.progressFor(id)), "late tick after delete of %s", id)
	}
}
