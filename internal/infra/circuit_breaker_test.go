package infra

import (
	"testing"
	"time"
)

func testBreaker(threshold, halfOpenMax int, recovery time.Duration) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: threshold,
		HalfOpenMaxCalls: halfOpenMax,
		RecoveryTimeout:  recovery,
	})
}

func TestCircuitBreaker_AllowInClosed(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("test"))

	if !cb.CanExecute() {
		t.Error("Expected CanExecute() to return true in CLOSED state")
	}

	if cb.GetState() != StateClosed {
		t.Errorf("Expected state CLOSED, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := testBreaker(3, 2, 100*time.Millisecond)

	// Record failures up to threshold
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.GetState() != StateClosed {
		t.Error("Should still be CLOSED after 2 failures")
	}

	cb.RecordFailure() // 3rd failure

	if cb.GetState() != StateOpen {
		t.Errorf("Expected OPEN after 3 failures, got %s", cb.GetState())
	}

	// Should reject requests when open
	if cb.CanExecute() {
		t.Error("Expected CanExecute() to return false in OPEN state")
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := testBreaker(2, 1, time.Minute)

	// Injected clock so the test never sleeps
	now := time.Now()
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	cb.RecordFailure()

	if cb.GetState() != StateOpen {
		t.Fatal("Expected OPEN state")
	}
	if cb.CanExecute() {
		t.Error("Expected rejection before recovery timeout")
	}

	now = now.Add(time.Minute + time.Second)

	if !cb.CanExecute() {
		t.Error("Expected CanExecute() to return true after timeout (half-open)")
	}
	if cb.GetState() != StateHalfOpen {
		t.Errorf("Expected HALF_OPEN, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_ClosesOnSuccess(t *testing.T) {
	cb := testBreaker(2, 2, time.Minute)

	now := time.Now()
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	cb.RecordFailure()
	now = now.Add(2 * time.Minute)

	if !cb.CanExecute() {
		t.Fatal("Expected half-open admission")
	}

	cb.RecordSuccess()
	if cb.GetState() != StateHalfOpen {
		t.Error("One success should not close a breaker needing 2")
	}

	cb.RecordSuccess()
	if cb.GetState() != StateClosed {
		t.Errorf("Expected CLOSED after 2 half-open successes, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_ReopensOnHalfOpenFailure(t *testing.T) {
	cb := testBreaker(2, 2, time.Minute)

	now := time.Now()
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	cb.RecordFailure()
	now = now.Add(2 * time.Minute)

	if !cb.CanExecute() {
		t.Fatal("Expected half-open admission")
	}

	cb.RecordFailure()

	if cb.GetState() != StateOpen {
		t.Errorf("Expected OPEN after half-open failure, got %s", cb.GetState())
	}
	// lastFailure was reset, so the recovery window restarts.
	if cb.CanExecute() {
		t.Error("Expected rejection immediately after reopening")
	}
}

func TestCircuitBreaker_HalfOpenTrialLimit(t *testing.T) {
	cb := testBreaker(1, 2, time.Minute)

	now := time.Now()
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	now = now.Add(2 * time.Minute)

	// Two trial calls admitted, third rejected until an outcome lands.
	if !cb.CanExecute() {
		t.Fatal("first trial call should be admitted")
	}
	if !cb.CanExecute() {
		t.Fatal("second trial call should be admitted")
	}
	if cb.CanExecute() {
		t.Error("third half-open call should be rejected")
	}
}

func TestCircuitBreaker_ReleaseTrialRestoresSlot(t *testing.T) {
	cb := testBreaker(1, 1, time.Minute)

	now := time.Now()
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	now = now.Add(2 * time.Minute)

	if !cb.CanExecute() {
		t.Fatal("Expected half-open admission")
	}
	// The single trial is consumed with no verdict recorded; without a
	// release the breaker would reject every further call forever.
	if cb.CanExecute() {
		t.Fatal("second call should be rejected while the trial is held")
	}

	cb.ReleaseTrial()

	if !cb.CanExecute() {
		t.Error("released trial slot should admit the next call")
	}
	cb.RecordSuccess()
	if cb.GetState() != StateClosed {
		t.Errorf("Expected CLOSED after the retried trial succeeds, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_ReleaseTrialOutsideHalfOpenIsNoop(t *testing.T) {
	cb := testBreaker(2, 1, time.Minute)

	cb.ReleaseTrial()
	if cb.GetState() != StateClosed || !cb.CanExecute() {
		t.Error("ReleaseTrial in CLOSED must not change behavior")
	}

	cb.RecordFailure()
	cb.RecordFailure()
	cb.ReleaseTrial()
	if cb.GetState() != StateOpen {
		t.Errorf("Expected OPEN, got %s", cb.GetState())
	}
	if cb.CanExecute() {
		t.Error("ReleaseTrial in OPEN must not admit calls early")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := testBreaker(3, 1, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.GetState() != StateClosed {
		t.Error("Non-consecutive failures should not open the breaker")
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := testBreaker(1, 1, time.Hour)

	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Fatal("Expected OPEN")
	}

	cb.Reset()
	if cb.GetState() != StateClosed {
		t.Error("Expected CLOSED after Reset")
	}
	if !cb.CanExecute() {
		t.Error("Expected CanExecute() after Reset")
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateClosed:   "CLOSED",
		StateOpen:     "OPEN",
		StateHalfOpen: "HALF_OPEN",
		State(99):     "UNKNOWN",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
