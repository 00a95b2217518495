package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFlaky = errors.New("flaky")

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	return cfg
}

func TestSucceedsAfterRetries(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 3

	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 2

	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		return errFlaky
	})
	if !errors.Is(err, errFlaky) {
		t.Fatalf("err = %v, want errFlaky", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestNonRetryableErrorStopsImmediately(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 5
	cfg.RetryableErrors = []error{errFlaky}

	fatal := errors.New("fatal")
	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("err = %v, want fatal", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWrappedRetryableErrorMatches(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 2
	cfg.RetryableErrors = []error{errFlaky}

	calls := 0
	Do(context.Background(), cfg, func() error {
		calls++
		return errors.Join(errors.New("context"), errFlaky)
	})
	if calls != 2 {
		t.Errorf("calls = %d, want 2 for a wrapped retryable error", calls)
	}
}

func TestCancelledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, fastConfig(), func() error {
		calls++
		return errFlaky
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}
