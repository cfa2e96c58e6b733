package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	logx "blockd/pkg/logx"
)

func tinyOpts() CallOptions {
	return CallOptions{
		Timeout:       time.Second,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 2 * time.Millisecond,
	}
}

func TestCallRetriesTransientErrors(t *testing.T) {
	attempts := 0
	got, err := Call(context.Background(), logx.Nop(), "op", tinyOpts(), func(context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != 42 || attempts != 3 {
		t.Fatalf("got %d after %d attempts", got, attempts)
	}
}

func TestCallExhaustsRetries(t *testing.T) {
	attempts := 0
	boom := errors.New("still broken")
	_, err := Call(context.Background(), logx.Nop(), "op", tinyOpts(), func(context.Context) (int, error) {
		attempts++
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want the last error", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want RetryMax+1", attempts)
	}
}

func TestCallShortCircuitsNonRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"validation", Validation("time", "bad")},
		{"permission", &PermissionError{Permission: "exact_alarm"}},
		{"unavailable", ErrUnavailable},
		{"wrapped no-retry", NoRetry(errors.New("permanent ipc failure"))},
	}
	for _, c := range cases {
		attempts := 0
		_, err := Call(context.Background(), logx.Nop(), "op", tinyOpts(), func(context.Context) (int, error) {
			attempts++
			return 0, c.err
		})
		if err == nil {
			t.Fatalf("%s: expected error", c.name)
		}
		if attempts != 1 {
			t.Fatalf("%s: non-retryable error must not be retried, attempts = %d", c.name, attempts)
		}
	}
}

func TestCallHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Call(ctx, logx.Nop(), "op", tinyOpts(), func(context.Context) (int, error) {
		return 0, errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestErrorPredicates(t *testing.T) {
	if !IsValidation(Validation("f", "r")) {
		t.Fatalf("IsValidation failed on its own type")
	}
	if IsValidation(errors.New("other")) {
		t.Fatalf("IsValidation matched a plain error")
	}
	if !IsNoRetry(ErrUnavailable) {
		t.Fatalf("unavailable must be non-retryable")
	}
	if IsNoRetry(errors.New("transient")) {
		t.Fatalf("plain errors must stay retryable")
	}
	if NoRetry(nil) != nil {
		t.Fatalf("NoRetry(nil) must stay nil")
	}
}
