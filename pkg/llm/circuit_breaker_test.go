package llm

import (
	"strings"
	"testing"
	"time"
)

func TestCircuitBreaker_ClosedAllowsRequests(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	if cb.State() != CircuitClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
	allowed, err := cb.Allow()
	if !allowed || err != nil {
		t.Errorf("Allow() = %v, %v on closed circuit", allowed, err)
	}
}

func TestCircuitBreaker_TripsAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 3, ResetAfter: time.Minute})

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != CircuitClosed {
		t.Fatalf("tripped below threshold at %d failures", cb.ConsecutiveFailures())
	}
	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v after %d failures, want open", cb.State(), cb.ConsecutiveFailures())
	}

	allowed, err := cb.Allow()
	if allowed {
		t.Error("open circuit admitted a request")
	}
	if err == nil || !strings.Contains(err.Error(), "circuit breaker open") {
		t.Errorf("err = %v", err)
	}
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 3, ResetAfter: time.Minute})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	if cb.ConsecutiveFailures() != 0 {
		t.Errorf("failure count = %d after success", cb.ConsecutiveFailures())
	}
	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != CircuitClosed {
		t.Error("circuit tripped on a non-consecutive failure run")
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Millisecond})

	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Fatal("circuit did not trip")
	}

	time.Sleep(5 * time.Millisecond)
	allowed, err := cb.Allow()
	if !allowed || err != nil {
		t.Fatalf("probe not admitted after reset window: %v, %v", allowed, err)
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("state = %v, want half-open", cb.State())
	}

	// Only one probe at a time.
	allowed, err = cb.Allow()
	if allowed {
		t.Error("second request admitted during half-open probe")
	}
	if err == nil || !strings.Contains(err.Error(), "half-open") {
		t.Errorf("err = %v", err)
	}
}

func TestCircuitBreaker_ProbeOutcome(t *testing.T) {
	t.Run("failed probe reopens", func(t *testing.T) {
		cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Millisecond})
		cb.RecordFailure()
		time.Sleep(5 * time.Millisecond)
		cb.Allow()
		cb.RecordFailure()
		if cb.State() != CircuitOpen {
			t.Errorf("state = %v after failed probe, want open", cb.State())
		}
	})

	t.Run("successful probe closes", func(t *testing.T) {
		cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Millisecond})
		cb.RecordFailure()
		time.Sleep(5 * time.Millisecond)
		cb.Allow()
		cb.RecordSuccess()
		if cb.State() != CircuitClosed {
			t.Errorf("state = %v after successful probe, want closed", cb.State())
		}
		if allowed, _ := cb.Allow(); !allowed {
			t.Error("closed circuit rejected a request")
		}
	})
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Hour})
	cb.RecordFailure()
	cb.Reset()
	if cb.State() != CircuitClosed || cb.ConsecutiveFailures() != 0 {
		t.Errorf("Reset left state=%v failures=%d", cb.State(), cb.ConsecutiveFailures())
	}
}

func TestCircuitStateString(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", tt.state, got, tt.want)
		}
	}
}
