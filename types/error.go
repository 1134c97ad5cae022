package types

import "fmt"

// ErrorCode represents a unified error code across the framework.
type ErrorCode string

// Invocation error codes
const (
	ErrTimeout             ErrorCode = "TIMEOUT"
	ErrTransport           ErrorCode = "TRANSPORT"
	ErrProvider            ErrorCode = "PROVIDER"
	ErrRateLimited         ErrorCode = "RATE_LIMITED"
	ErrUnauthorized        ErrorCode = "UNAUTHORIZED"
	ErrAgentNotFound       ErrorCode = "AGENT_NOT_FOUND"
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
)

// Orchestration error codes
const (
	ErrConfigInvalid      ErrorCode = "CONFIG_INVALID"
	ErrAllAgentsFailed    ErrorCode = "ALL_AGENTS_FAILED"
	ErrArbiterUnavailable ErrorCode = "ARBITER_UNAVAILABLE"
	ErrRunCancelled       ErrorCode = "RUN_CANCELLED"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	AgentID   string    `json:"agent_id,omitempty"`
	Round     int       `json:"round,omitempty"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithAgent tags the error with the agent identifier it originated from.
func (e *Error) WithAgent(agentID string) *Error {
	e.AgentID = agentID
	return e
}

// WithRound tags the error with the round it occurred in (1-based).
func (e *Error) WithRound(round int) *Error {
	e.Round = round
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
