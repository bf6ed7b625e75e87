// Package retry re-runs data access calls that failed for connection-class
// reasons. Constraint violations and validation errors are returned at once.
package retry

import (
	"context"
	"math"
	"time"

	"printshop/internal/apperr"
)

type Policy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

var Default = Policy{Attempts: 3, Base: 100 * time.Millisecond, Max: 2 * time.Second}

// Backoff is the wait before retry number attempt (1-based): base * 2^(attempt-1), capped.
func (p Policy) Backoff(attempt int) time.Duration {
	d := time.Duration(float64(p.Base) * math.Pow(2, float64(attempt-1)))
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

func Do(ctx context.Context, p Policy, fn func() error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || !apperr.IsRetryable(err) || attempt >= p.Attempts {
			return err
		}
		t := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}
