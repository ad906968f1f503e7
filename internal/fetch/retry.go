package fetch

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// Retrier retries transient fetch failures with a uniformly jittered backoff.
type Retrier struct {
	// Total attempts, including the first
	Attempts   int
	BackoffMin time.Duration
	BackoffMax time.Duration
	Logger     *logrus.Logger

	// Sleep waits between attempts; defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do calls fn until it succeeds, returns a non-temporary error, or the
// attempts are used up. The last error is returned unchanged.
func (r *Retrier) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !IsTemporary(err) || attempt == attempts {
			return err
		}

		wait := Jitter(r.BackoffMin, r.BackoffMax)
		if r.Logger != nil {
			r.Logger.WithError(err).WithFields(logrus.Fields{
				"operation": operation,
				"attempt":   attempt,
				"attempts":  attempts,
				"backoff":   wait.String(),
			}).Warn("Fetch failed, backing off")
		}
		if serr := sleep(ctx, wait); serr != nil {
			return err
		}
	}
	return err
}

// Jitter returns a uniformly random duration in [min, max].
func Jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)+1))
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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
