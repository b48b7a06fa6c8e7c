package engine

import (
	"context"
	"time"
)

// Budget counts failures within one resolution. Backend errors and
// rejected answers draw from the same budget. It is a value: Spend
// returns the updated budget rather than mutating shared state.
type Budget struct {
	max      int
	failures int
}

// NewBudget allows up to max failures; the max-th failure exhausts it.
func NewBudget(max int) Budget {
	if max < 1 {
		max = 1
	}
	return Budget{max: max}
}

// Spend records one failure.
func (b Budget) Spend() Budget {
	b.failures++
	return b
}

// Exhausted reports whether no retry is left.
func (b Budget) Exhausted() bool {
	return b.failures >= b.max
}

// Failures returns the number of failures recorded so far.
func (b Budget) Failures() int {
	return b.failures
}

const maxDuration = time.Duration(1<<63 - 1)

// Backoff returns the wait before the next retry: unit * 2^(failures-1),
// capped at max when max is positive. hint, typically a provider's
// Retry-After, raises the wait when it is longer.
func (b Budget) Backoff(unit, max, hint time.Duration) time.Duration {
	if b.failures < 1 {
		return 0
	}
	d := unit
	for i := 1; i < b.failures && d <= maxDuration/2; i++ {
		d *= 2
	}
	if hint > d {
		d = hint
	}
	if max > 0 && d > max {
		d = max
	}
	return d
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
