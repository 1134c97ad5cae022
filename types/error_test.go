package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ErrorString(t *testing.T) {
	t.Parallel()

	e := NewError(ErrArbiterUnavailable, "arbiter call failed")
	if got := e.Error(); got != "[ARBITER_UNAVAILABLE] arbiter call failed" {
		t.Fatalf("unexpected error string: %q", got)
	}

	cause := errors.New("connection refused")
	e = e.WithCause(cause)
	if got := e.Error(); got != "[ARBITER_UNAVAILABLE] arbiter call failed: connection refused" {
		t.Fatalf("unexpected error string with cause: %q", got)
	}
	if !errors.Is(e, cause) {
		t.Fatal("expected errors.Is to match the cause")
	}
}

func TestError_Builders(t *testing.T) {
	t.Parallel()

	e := NewError(ErrTimeout, "agent timed out").
		WithAgent("gpt-4o").
		WithRound(2).
		WithRetryable(true)

	if e.AgentID != "gpt-4o" || e.Round != 2 || !e.Retryable {
		t.Fatalf("builders not applied: %+v", e)
	}
	if !IsRetryable(e) {
		t.Fatal("expected IsRetryable to report true")
	}
	if GetErrorCode(e) != ErrTimeout {
		t.Fatalf("unexpected code: %s", GetErrorCode(e))
	}
}

func TestGetErrorCode_PlainError(t *testing.T) {
	t.Parallel()

	if got := GetErrorCode(fmt.Errorf("plain")); got != "" {
		t.Fatalf("expected empty code for plain error, got %q", got)
	}
	if IsRetryable(fmt.Errorf("plain")) {
		t.Fatal("plain errors are not retryable")
	}
}
