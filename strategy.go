package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// strategy is one way of performing an interaction. Strategies for the same
// step are tried in order until one succeeds.
type strategy struct {
	name string
	do   func(ctx context.Context) error
}

func tryStrategies(ctx context.Context, step string, strategies ...strategy) error {
	var errs []error
	for i, s := range strategies {
		err := s.do(ctx)
		if err == nil {
			if i > 0 {
				Logf("info", "%s succeeded via %s.", step, s.name)
			}
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		if ctx.Err() != nil {
			break
		}
		if i < len(strategies)-1 {
			Logf("warn", "%s via %s failed (%v). Trying %s...", step, s.name, err, strategies[i+1].name)
		}
	}
	return fmt.Errorf("%s failed: %w", step, errors.Join(errs...))
}

// pauseFunc sleeps for a random duration in [min, max) or until ctx is done.
type pauseFunc func(ctx context.Context, min, max time.Duration)

func randomPause(ctx context.Context, min, max time.Duration) {
	d := min
	if max > min {
		d += time.Duration(rand.Int63n(int64(max - min)))
	}
	sleepContext(ctx, d)
}

const navigationRetries = 3

var navigationInitialInterval = 2 * time.Second

func navigateWithRetry(ctx context.Context, page Page, url string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = navigationInitialInterval
	b.MaxInterval = 10 * time.Second

	policy := backoff.WithContext(backoff.WithMaxRetries(b, navigationRetries), ctx)
	return backoff.RetryNotify(func() error {
		return page.Navigate(ctx, url)
	}, policy, func(err error, wait time.Duration) {
		Logf("warn", "Navigation to %s failed: %v. Retrying in %v", url, err, wait.Round(time.Millisecond))
	})
}
