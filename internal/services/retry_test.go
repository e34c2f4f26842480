package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"feedcaster/internal/services"
)

type hintedError struct{ delay time.Duration }

func (e hintedError) Error() string { return "rate limited" }
func (e hintedError) RetryAfter() time.Duration { return e.delay }
func (e hintedError) Unwrap() error { return services.ErrTransient }

func TestRetryBacksOffExponentially(t *testing.T) {
	var delays []time.Duration
	policy := services.RetryPolicy{
		Attempts:  3,
		BaseDelay: 5 * time.Second,
		MaxDelay:  time.Minute,
		Sleeper:   func(d time.Duration) { delays = append(delays, d) },
	}
	calls := 0
	got, err := services.Retry(context.Background(), policy, "generate", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", services.Transient(errors.New("503"))
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Fatalf("unexpected result %q after %d calls", got, calls)
	}
	if len(delays) != 2 || delays[0] != 5*time.Second || delays[1] != 10*time.Second {
		t.Fatalf("unexpected delays %v", delays)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	policy := services.RetryPolicy{Attempts: 5, Sleeper: func(time.Duration) {}}
	err := services.RetryErr(context.Background(), policy, "upload", func(context.Context) error {
		calls++
		return errors.New("403 forbidden")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected single attempt, got %d calls err=%v", calls, err)
	}
}

func TestRetryReportsExhaustion(t *testing.T) {
	calls := 0
	policy := services.RetryPolicy{Attempts: 3, Sleeper: func(time.Duration) {}}
	err := services.RetryErr(context.Background(), policy, "speak", func(context.Context) error {
		calls++
		return services.Transient(errors.New("timeout"))
	})
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if err == nil || !strings.Contains(err.Error(), "failed after 3 attempts") {
		t.Fatalf("unexpected error %v", err)
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker retained, got %v", err)
	}
}

func TestRetryHonoursRetryAfterHint(t *testing.T) {
	var delays []time.Duration
	policy := services.RetryPolicy{
		Attempts:  2,
		BaseDelay: time.Second,
		MaxDelay:  10 * time.Second,
		Sleeper:   func(d time.Duration) { delays = append(delays, d) },
	}
	calls := 0
	_ = services.RetryErr(context.Background(), policy, "generate", func(context.Context) error {
		calls++
		if calls == 1 {
			return hintedError{delay: 30 * time.Second}
		}
		return nil
	})
	if len(delays) != 1 || delays[0] != 10*time.Second {
		t.Fatalf("expected hint capped to max delay, got %v", delays)
	}
}

func TestRetryAppliesCallTimeout(t *testing.T) {
	policy := services.RetryPolicy{Attempts: 2, CallTimeout: 10 * time.Millisecond, Sleeper: func(time.Duration) {}}
	calls := 0
	err := services.RetryErr(context.Background(), policy, "speak", func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	if calls != 2 {
		t.Fatalf("expected timeout to be retried, got %d calls", calls)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRetryStopsWhenParentCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := services.RetryPolicy{Attempts: 5, Sleeper: func(time.Duration) {}}
	calls := 0
	err := services.RetryErr(ctx, policy, "speak", func(context.Context) error {
		calls++
		cancel()
		return services.Transient(errors.New("503"))
	})
	if calls != 1 || err == nil {
		t.Fatalf("expected one call and an error, got %d %v", calls, err)
	}
}
