package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrTimeout is returned by [Retry] when every attempt ran out of time.
var ErrTimeout = errors.New("call timed out")

// RetryConfig bounds a retried call.
type RetryConfig struct {
	// MaxAttempts is the total number of calls, including the first.
	// Values below 1 mean a single attempt.
	MaxAttempts int

	// CallTimeout limits each attempt. Zero disables the per-attempt deadline.
	CallTimeout time.Duration

	// Backoff is the wait before attempt n+1, multiplied by n.
	Backoff time.Duration

	// Name labels log lines.
	Name string
}

// Retry calls fn until it succeeds, MaxAttempts is reached, or ctx is done.
// Each attempt receives its own context bounded by CallTimeout.
//
// A parent cancellation is never retried and its error is returned as is.
// When the attempts are exhausted and the last one hit its deadline, the
// returned error wraps [ErrTimeout] and the attempt error.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	attempts := max(cfg.MaxAttempts, 1)

	var lastErr error
	for n := 1; n <= attempts; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = attempt(ctx, cfg.CallTimeout, fn)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if n == attempts {
			break
		}

		slog.Debug("attempt failed, retrying", "call", cfg.Name, "attempt", n, "err", lastErr)
		if cfg.Backoff > 0 {
			t := time.NewTimer(cfg.Backoff * time.Duration(n))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}

	if errors.Is(lastErr, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %d attempts: %w", ErrTimeout, attempts, lastErr)
	}
	return lastErr
}

func attempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx)
}
