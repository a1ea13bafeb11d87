// Package retry provides the exponential-backoff wrapper used for
// database-critical field updates.
package retry

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"possync-go/internal/config"
)

// AttemptFunc performs one remote attempt, returning the server-confirmed
// payload on success.
type AttemptFunc func(ctx context.Context) (json.RawMessage, error)

// Result is the typed outcome of a retried update. Callers branch on Success
// rather than on a returned error; Do never panics and never loses the last
// error.
type Result struct {
	Success    bool
	Data       json.RawMessage
	Err        error
	RetryCount int
}

// Updater retries an attempt with exponential backoff. Every failure is
// retried until attempts exhaust - there is deliberately no retryable-vs-
// fatal taxonomy, matching the write paths it serves.
type Updater struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *zap.Logger

	// sleep is injectable so tests can assert the backoff schedule without
	// waiting it out
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an Updater performing maxRetries retries (maxRetries+1 total
// attempts) with delays of baseDelay * 2^n between attempts.
func New(maxRetries int, baseDelay time.Duration, logger *zap.Logger) *Updater {
	if maxRetries < 0 {
		maxRetries = config.DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = config.InitialBackoffDelay
	}
	return &Updater{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   config.MaxBackoffDelay,
		logger:     logger.Named("retry"),
		sleep:      sleepCtx,
	}
}

// Do runs attempt up to maxRetries+1 times. A non-nil error from attempt
// counts as a failed attempt. On exhaustion the last error is returned in
// the Result together with the number of retries performed.
func (u *Updater) Do(ctx context.Context, op string, attempt AttemptFunc) Result {
	var lastErr error
	retries := 0

	for i := 0; i <= u.maxRetries; i++ {
		retries = i
		data, err := attempt(ctx)
		if err == nil {
			if i > 0 {
				u.logger.Info("Update succeeded after retries",
					zap.String("op", op), zap.Int("retries", i))
			}
			return Result{Success: true, Data: data, RetryCount: i}
		}
		lastErr = err

		if i == u.maxRetries {
			break
		}

		delay := u.backoff(i)
		u.logger.Warn("Update attempt failed, backing off",
			zap.String("op", op),
			zap.Int("attempt", i+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		// An aborted backoff ends the loop with only i retries performed;
		// the Result must not claim the rest happened.
		if err := u.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	u.logger.Error("Update failed",
		zap.String("op", op),
		zap.Int("attempts", retries+1),
		zap.Error(lastErr))

	return Result{Err: lastErr, RetryCount: retries}
}

// backoff returns baseDelay * 2^attemptIndex, capped at maxDelay.
func (u *Updater) backoff(attemptIndex int) time.Duration {
	delay := u.baseDelay << uint(attemptIndex)
	if delay > u.maxDelay || delay <= 0 {
		return u.maxDelay
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
