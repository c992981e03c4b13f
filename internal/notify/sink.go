// Package notify delivers timer notifications to the outside world.
//
// Every destination implements Sink. Delivery is best effort: a Sink error is
// logged and counted by the caller but never undoes the state transition that
// produced the notification.
package notify

import (
	"context"

	"github.com/ramiqadoumi/go-countdown/internal/domain"
)

const (
	KindProgress   = "progress"
	KindCompletion = "completion"
)

// Sink receives progress and completion notifications.
//
// Implementations must be safe for concurrent use: every running timer
// delivers from its own goroutine. Every call carries a context bounded by
// the engine's notify timeout. Tick progress is also cancelled when the
// countdown is paused, reset, restarted or deleted, and those operations wait
// for the delivery to return, so a Sink must honour ctx to keep them prompt.
// Progress triggered by start, pause, resume and reset is delivered on the
// caller's goroutine before the operation returns.
//
// A Sink must not call back into the engine synchronously for the same timer,
// since the engine waits for in-flight deliveries when it cancels a countdown.
type Sink interface {
	Progress(ctx context.Context, p domain.Progress) error
	Completion(ctx context.Context, c domain.Completion) error
}

// Discard drops every notification.
var Discard Sink = discard{}

type discard struct{}

func (discard) Progress(context.Context, domain.Progress) error     { return nil }
func (discard) Completion(context.Context, domain.Completion) error { return nil }

// Funcs adapts plain functions to a Sink. Nil fields discard.
type Funcs struct {
	OnProgress   func(ctx context.Context, p domain.Progress) error
	OnCompletion func(ctx context.Context, c domain.Completion) error
}

func (f Funcs) Progress(ctx context.Context, p domain.Progress) error {
	if f.OnProgress == nil {
		return nil
	}
	return f.OnProgress(ctx, p)
}

func (f Funcs) Completion(ctx context.Context, c domain.Completion) error {
	if f.OnCompletion == nil {
		return nil
	}
	return f.OnCompletion(ctx, c)
}
