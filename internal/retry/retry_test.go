package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoAcceptsLaterAttempt(t *testing.T) {
	t.Parallel()

	var retried []int
	cfg := RetryConfig{MaxAttempts: 5, OnRetry: func(attempt int, _ error) { retried = append(retried, attempt) }}

	got, err := Do(context.Background(), cfg, func(_ context.Context, attempt int) (int, error) {
		return attempt, nil
	}, func(n int) error {
		if n < 3 {
			return errors.New("too small")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 3 {
		t.Errorf("got %d, want 3", got)
	}
	if len(retried) != 2 {
		t.Errorf("OnRetry called %d times, want 2", len(retried))
	}
}

func TestDoExhausts(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Do(context.Background(), Fixed(4, 0), func(context.Context, int) (string, error) {
		calls++
		return "", errors.New("boom")
	}, nil)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("want ErrExhausted, got %v", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestDoPermanentStops(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("bad request")
	calls := 0
	_, err := Do(context.Background(), Fixed(5, 0), func(context.Context, int) (int, error) {
		calls++
		return 0, Permanent(sentinel)
	}, nil)
	if !errors.Is(err, sentinel) || errors.Is(err, ErrExhausted) {
		t.Fatalf("unexpected error %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWithRetryHonoursContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := WithRetry(ctx, Fixed(3, time.Hour), func() error {
		calls++
		cancel()
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{Delay: time.Second, Backoff: true}
	if d := cfg.delay(3); d != 4*time.Second {
		t.Errorf("delay(3) = %v, want 4s", d)
	}
	cfg.Backoff = false
	if d := cfg.delay(3); d != time.Second {
		t.Errorf("fixed delay(3) = %v, want 1s", d)
	}
}
