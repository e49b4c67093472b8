package app

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"quizstreak-service/internal/domain"
)

// Retry runs fn until it succeeds, fails with a non-transient error, or
// maxElapsed passes. Partially applied submissions are never rerun.
func Retry(ctx context.Context, maxElapsed time.Duration, fn func(context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = maxElapsed

	return backoff.Retry(func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var partial *PartialFailureError
		if errors.As(err, &partial) || !domain.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy, ctx))
}
