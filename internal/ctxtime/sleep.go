// Package ctxtime provides time helpers that respect context cancellation.
package ctxtime

import (
	"context"
	"time"
)

// Sleep pauses for d or until ctx is cancelled, whichever comes first. It
// returns the context's error when the sleep was interrupted.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if ctx == nil {
		time.Sleep(d)
		return nil
	}

	t := time.NewTimer(d)
	select {
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	case <-t.C:
	}
	return nil
}
