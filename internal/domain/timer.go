package domain

import "time"

// State is the derived lifecycle state of a timer.
type State string

const (
	StateIdle      State = "IDLE"
	StateRunning   State = "RUNNING"
	StatePaused    State = "PAUSED"
	StateCompleted State = "COMPLETED"
)

// TimestampLayout is the wire format for every timestamp the engine emits.
const TimestampLayout = time.RFC3339Nano

// Timer is a point-in-time snapshot of one countdown timer.
// Snapshots are copies; mutating one never affects the engine.
type Timer struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DurationMs  int64  `json:"duration_ms"`
	RemainingMs int64  `json:"remaining_ms"`
	Running     bool   `json:"running"`
	Completed   bool   `json:"completed"`
	CreatedAt   string `json:"created_at"`
}

// State derives the lifecycle state from the snapshot flags. A timer that is
// neither running nor completed counts as paused once some time has elapsed.
func (t Timer) State() State {
	switch {
	case t.Running:
		return StateRunning
	case t.Completed:
		return StateCompleted
	case t.RemainingMs != t.DurationMs:
		return StatePaused
	default:
		return StateIdle
	}
}

// Progress is emitted on start, pause, resume and reset, and once per tick
// while a timer is running.
type Progress struct {
	TimerID     string `json:"timer_id" cbor:"timer_id"`
	RemainingMs int64  `json:"remaining_ms" cbor:"remaining_ms"`
	DurationMs  int64  `json:"duration_ms" cbor:"duration_ms"`
	Running     bool   `json:"running" cbor:"running"`
}

// Completion is emitted exactly once when a countdown reaches zero on its own.
type Completion struct {
	TimerID    string `json:"timer_id" cbor:"timer_id"`
	FinishedAt string `json:"finished_at" cbor:"finished_at"`
}

// FormatTimestamp renders t in the engine's wire format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
