package fetcher

import (
	"context"
	"time"
)

// PauseController abstracts how the fetcher waits between attempts, so
// tests can observe backoff schedules without sleeping.
type PauseController interface {
	Pause(ctx context.Context, delay time.Duration)
}

// TimerPause waits on a timer, honoring context cancellation.
type TimerPause struct{}

// Pause blocks for delay or until ctx is done, whichever comes first.
func (TimerPause) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
