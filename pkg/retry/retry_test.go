package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestDo_GivesUpAfterBudget(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		return errors.New("still down")
	})
	if err == nil {
		t.Fatal("Expected an error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	if !strings.Contains(err.Error(), "still down") || !strings.Contains(err.Error(), "3 attempts") {
		t.Errorf("Expected the last failure wrapped with attempt context, got %q", err)
	}
}

func TestDo_OnRetryObservesAttempts(t *testing.T) {
	var attempts []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error) {
		attempts = append(attempts, attempt)
	}
	_ = Do(context.Background(), cfg, func() error {
		return errors.New("boom")
	})
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("Expected OnRetry for attempts 1 and 2, got %v", attempts)
	}
}

func TestDo_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, fastConfig(3), func() error {
		return errors.New("never succeeds")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(errors.New("dial tcp: connection refused")) {
		t.Error("connection refused should be retryable")
	}
	if IsRetryable(errors.New("invalid api key")) {
		t.Error("auth failures should not be retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil is not retryable")
	}
}
