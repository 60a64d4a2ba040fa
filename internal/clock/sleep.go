package clock

import (
	"context"
	"time"
)

// SleepInterruptibly sleeps for the given duration, or until ctx is done,
// whichever comes first. It returns true if the full duration elapsed and
// false if ctx was canceled first.
func SleepInterruptibly(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
