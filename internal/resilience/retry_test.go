package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 3}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errTest
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_ExhaustedReturnsLastError(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 2}, func(context.Context) error {
		calls++
		return errTest
	})
	if !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want errTest", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("plain failure must not report ErrTimeout")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetry_TimeoutOnExhaustion(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), RetryConfig{
		MaxAttempts: 2,
		CallTimeout: 10 * time.Millisecond,
	}, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetry_ParentCancelNotRetried(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, RetryConfig{MaxAttempts: 5}, func(context.Context) error {
		calls++
		cancel()
		return errTest
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_ZeroAttemptsMeansOne(t *testing.T) {
	t.Parallel()

	calls := 0
	_ = Retry(context.Background(), RetryConfig{}, func(context.Context) error {
		calls++
		return errTest
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
