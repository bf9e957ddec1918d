package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeSleep records requested waits without sleeping.
type fakeSleep struct {
	waits []time.Duration
	err   error
}

func (f *fakeSleep) sleep(_ context.Context, d time.Duration) error {
	f.waits = append(f.waits, d)
	return f.err
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		max     time.Duration
		want    time.Duration
	}{
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 4, want: 8 * time.Second},
		{attempt: 0, want: time.Second},
		{attempt: 4, max: 5 * time.Second, want: 5 * time.Second},
	}
	for _, tc := range tests {
		if got := Backoff(time.Second, tc.attempt, tc.max); got != tc.want {
			t.Errorf("Backoff(1s, %d, %v) = %v, want %v", tc.attempt, tc.max, got, tc.want)
		}
	}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	fs := &fakeSleep{}
	attempts, err := Retry(context.Background(), RetryConfig{Sleep: fs.sleep}, func(context.Context, int) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if len(fs.waits) != 0 {
		t.Errorf("waits = %v, want none", fs.waits)
	}
}

func TestRetry_DefaultsToTwoAttempts(t *testing.T) {
	fs := &fakeSleep{}
	boom := errors.New("503")
	calls := 0
	attempts, err := Retry(context.Background(), RetryConfig{Sleep: fs.sleep}, func(_ context.Context, attempt int) error {
		calls++
		if attempt != calls {
			t.Errorf("attempt = %d, want %d", attempt, calls)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if attempts != 2 || calls != 2 {
		t.Errorf("attempts = %d, calls = %d, want 2", attempts, calls)
	}
	if len(fs.waits) != 1 || fs.waits[0] != time.Second {
		t.Errorf("waits = %v, want [1s]", fs.waits)
	}
}

func TestRetry_ExponentialWaits(t *testing.T) {
	fs := &fakeSleep{}
	var retried []int
	cfg := RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   100 * time.Millisecond,
		Sleep:       fs.sleep,
		OnRetry:     func(attempt int, _ time.Duration, _ error) { retried = append(retried, attempt) },
	}
	errs := []error{errors.New("a"), errors.New("b"), errors.New("c"), nil}
	attempts, err := Retry(context.Background(), cfg, func(_ context.Context, attempt int) error {
		return errs[attempt-1]
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4", attempts)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	if len(fs.waits) != len(want) {
		t.Fatalf("waits = %v, want %v", fs.waits, want)
	}
	for i := range want {
		if fs.waits[i] != want[i] {
			t.Errorf("wait %d = %v, want %v", i, fs.waits[i], want[i])
		}
	}
	if len(retried) != 3 {
		t.Errorf("OnRetry called %d times, want 3", len(retried))
	}
}

func TestRetry_ReturnsLastError(t *testing.T) {
	fs := &fakeSleep{}
	first, second := errors.New("first"), errors.New("second")
	_, err := Retry(context.Background(), RetryConfig{Sleep: fs.sleep}, func(_ context.Context, attempt int) error {
		if attempt == 1 {
			return first
		}
		return second
	})
	if !errors.Is(err, second) || errors.Is(err, first) {
		t.Fatalf("err = %v, want the last attempt's error", err)
	}
}

func TestRetry_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := RetryConfig{
		MaxAttempts: 3,
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}
	attempts, err := Retry(ctx, cfg, func(context.Context, int) error {
		calls++
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 || attempts != 1 {
		t.Errorf("calls = %d, attempts = %d, want 1", calls, attempts)
	}
}

func TestRetry_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	attempts, err := Retry(ctx, RetryConfig{}, func(context.Context, int) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) || calls != 0 || attempts != 0 {
		t.Fatalf("err = %v, calls = %d, attempts = %d", err, calls, attempts)
	}
}

func TestRetryWithResult(t *testing.T) {
	fs := &fakeSleep{}
	got, attempts, err := RetryWithResult(context.Background(), RetryConfig{Sleep: fs.sleep}, func(_ context.Context, attempt int) (string, error) {
		if attempt == 1 {
			return "", errors.New("transient")
		}
		return "audio", nil
	})
	if err != nil {
		t.Fatalf("RetryWithResult: %v", err)
	}
	if got != "audio" || attempts != 2 {
		t.Errorf("got %q after %d attempts", got, attempts)
	}
}

func TestSleep_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep did not return promptly on cancelled context")
	}
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Sleep: %v", err)
	}
}
