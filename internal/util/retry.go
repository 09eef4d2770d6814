package util

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryOnWithContext calls fn up to maxTries times while it fails with an error
// matching target. Between attempts it sleeps for interval doubled per attempt
// plus up to interval of random jitter. Any other error is returned at once.
func RetryOnWithContext(
	ctx context.Context,
	maxTries int,
	interval time.Duration,
	target error,
	fn func(context.Context) error,
) error {
	if maxTries <= 0 {
		maxTries = 1
	}
	var lastErr error
	for i := 0; i < maxTries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, target) {
			return err
		}
		lastErr = err
		if i == maxTries-1 {
			break
		}
		if err := sleepWithJitter(ctx, interval<<i, interval); err != nil {
			return err
		}
	}
	return lastErr
}

func sleepWithJitter(ctx context.Context, base, jitter time.Duration) error {
	d := base
	if jitter > 0 {
		d += time.Duration(rand.Int64N(int64(jitter) + 1))
	}
	if d <= 0 {
		return nil
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
