package service

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/logger"
	"chargeshare-backend/internal/repository"
)

// retrying runs fn again on lock contention, serialization failures and
// rental-code collisions, with exponential backoff and jitter, at most
// maxRetries extra times. Any other error is returned on first sight.
func retrying(ctx context.Context, op string, base time.Duration, maxRetries int, fn func(ctx context.Context) error) error {
	b := retry.NewExponential(base)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithMaxRetries(uint64(maxRetries), b)

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if domain.IsRetryable(err) || errors.Is(err, repository.ErrDuplicateRentalCode) {
			logger.Warn("Retrying after transient conflict", "op", op, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}
