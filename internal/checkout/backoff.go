package checkout

import (
	"context"
	"math/rand"
	"time"
)

// Backoff bounds the retries of a transient reconciliation failure.
type Backoff struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{Attempts: 4, Base: 100 * time.Millisecond, Max: 2 * time.Second}
}

// Delay before retry number attempt (0-based): base*2^attempt plus up to half
// of that again as jitter, capped at Max.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if attempt > 16 {
		attempt = 16
	}
	exp := b.Base * time.Duration(1<<attempt)
	if b.Max > 0 && exp > b.Max {
		return b.Max
	}
	d := exp + time.Duration(rand.Int63n(int64(exp/2)+1))
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
