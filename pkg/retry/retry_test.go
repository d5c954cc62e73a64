package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// fastConfig keeps test backoff in the microsecond range.
func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:   maxRetries,
		InitialDelay: time.Microsecond,
		MaxDelay:     10 * time.Microsecond,
		Multiplier:   2.0,
	}
}

type declaredError struct {
	msg       string
	retryable bool
}

func (e *declaredError) Error() string     { return e.msg }
func (e *declaredError) IsRetryable() bool { return e.retryable }

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_BudgetExhausted(t *testing.T) {
	calls := 0
	wantErr := errors.New("embed endpoint: 503 service unavailable")
	err := Do(context.Background(), fastConfig(2), func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want last error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want initial + 2 retries", calls)
	}
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, func() error {
			calls++
			return errors.New("timeout")
		})
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("retry did not abort on cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	vec, err := DoWithResult(context.Background(), fastConfig(3), func() ([]float32, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("connection reset")
		}
		return []float32{0.1, 0.2}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("result = %v", vec)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDoIfRetryable_PermanentErrorReturnsImmediately(t *testing.T) {
	calls := 0
	wantErr := errors.New("password authentication failed for user")
	err := DoIfRetryable(context.Background(), fastConfig(5), func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries on permanent failure)", calls)
	}
}

func TestDoIfRetryable_RepeatedSameErrorEscalates(t *testing.T) {
	cfg := fastConfig(10)
	cfg.MaxSameErrorType = 3

	calls := 0
	err := DoIfRetryable(context.Background(), cfg, func() error {
		calls++
		return errors.New("503 service unavailable")
	})
	if err == nil {
		t.Fatal("expected escalation")
	}
	if !strings.Contains(err.Error(), "repeated error") {
		t.Errorf("err = %v, want repeated-error escalation", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (escalate at MaxSameErrorType)", calls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"declared retryable wins", &declaredError{msg: "llm call failed", retryable: true}, true},
		{"declared permanent wins over pattern", &declaredError{msg: "request timeout", retryable: false}, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"rate limited", errors.New("429 too many requests"), true},
		{"gpu flake", errors.New("CUDA error: out of memory"), true},
		{"bad credentials", errors.New("invalid api key"), false},
		{"malformed sql", errors.New("syntax error at or near SELECT"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{errors.New("503 service unavailable"), "503"},
		{errors.New("connection refused"), "connection"},
		{errors.New("request timed out"), "timeout"},
		{errors.New("rate limit exceeded"), "rate_limit"},
		{errors.New("CUDA error: device lost"), "gpu"},
		{errors.New("something else"), "unknown"},
		{nil, "nil"},
	}
	for _, tt := range tests {
		if got := classifyErrorType(tt.err); got != tt.want {
			t.Errorf("classifyErrorType(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
