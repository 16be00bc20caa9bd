package errors

import (
	"fmt"
	"net"
	"testing"
)

func TestTaxonomyPredicates(t *testing.T) {
	cfgErr := fmt.Errorf("building toolset: %w",
		&ConfigurationError{Item: "action-1", Err: fmt.Errorf("missing url")})
	if !IsConfiguration(cfgErr) {
		t.Fatal("wrapped ConfigurationError not detected")
	}
	if IsActionNotFound(cfgErr) {
		t.Fatal("ConfigurationError misclassified as ActionNotFound")
	}

	nfErr := &ActionNotFoundError{ActionID: "a1", SessionID: "s1"}
	if !IsActionNotFound(fmt.Errorf("invoke: %w", nfErr)) {
		t.Fatal("wrapped ActionNotFoundError not detected")
	}

	execErr := &ExecutionFailure{ActionType: "WEBHOOK", Err: fmt.Errorf("boom")}
	if !IsExecutionFailure(execErr) {
		t.Fatal("ExecutionFailure not detected")
	}

	if !IsSessionNotFound(&SessionNotFoundError{SessionID: "s9"}) {
		t.Fatal("SessionNotFoundError not detected")
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(nil) {
		t.Fatal("nil must not be transient")
	}
	if !IsTransient(&net.OpError{Op: "dial", Err: fmt.Errorf("connection refused")}) {
		t.Fatal("network error should be transient")
	}
	if !IsTransient(&HTTPStatusError{StatusCode: 503}) {
		t.Fatal("503 should be transient")
	}
	if IsTransient(&HTTPStatusError{StatusCode: 400}) {
		t.Fatal("400 should not be transient")
	}
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          1, // nanosecond, half-open on next Allow
	})

	if err := cb.Allow(); err != nil {
		t.Fatalf("closed breaker should allow: %v", err)
	}
	cb.Mark(fmt.Errorf("fail 1"))
	cb.Mark(fmt.Errorf("fail 2"))
	if cb.State() != StateOpen {
		t.Fatalf("expected open after threshold, got %v", cb.State())
	}

	// Timeout elapsed, Allow transitions to half-open.
	if err := cb.Allow(); err != nil {
		t.Fatalf("expected half-open probe allowed: %v", err)
	}
	cb.Mark(nil)
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %v", cb.State())
	}
}
