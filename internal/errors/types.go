package errors

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ConfigurationError reports a missing or malformed piece of session
// configuration. The offending item is skipped and the session proceeds with
// whatever did load.
type ConfigurationError struct {
	Item string // action id, config key, etc.
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %v", e.Item, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ActionNotFoundError reports a tool invocation naming an action id that is
// not among the session's configured actions. Tool-visible, never fatal.
type ActionNotFoundError struct {
	ActionID  string
	SessionID string
}

func (e *ActionNotFoundError) Error() string {
	return fmt.Sprintf("action %s not found in session %s", e.ActionID, e.SessionID)
}

// ExecutionFailure reports a network or backend error while invoking an
// action. Returned to the calling model as a structured result; never
// retried automatically.
type ExecutionFailure struct {
	ActionType string
	Err        error
}

func (e *ExecutionFailure) Error() string {
	return fmt.Sprintf("action %s execution failed: %v", e.ActionType, e.Err)
}

func (e *ExecutionFailure) Unwrap() error { return e.Err }

// SessionNotFoundError reports an operation against an unknown session id.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.SessionID)
}

// SpeechFailure reports a failed reminder or final-message utterance. Logged
// by callers; termination is still attempted afterwards.
type SpeechFailure struct {
	SessionID string
	Err       error
}

func (e *SpeechFailure) Error() string {
	return fmt.Sprintf("speech failed for session %s: %v", e.SessionID, e.Err)
}

func (e *SpeechFailure) Unwrap() error { return e.Err }

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsActionNotFound reports whether err is an ActionNotFoundError.
func IsActionNotFound(err error) bool {
	var target *ActionNotFoundError
	return errors.As(err, &target)
}

// IsExecutionFailure reports whether err is an ExecutionFailure.
func IsExecutionFailure(err error) bool {
	var target *ExecutionFailure
	return errors.As(err, &target)
}

// IsSessionNotFound reports whether err is a SessionNotFoundError.
func IsSessionNotFound(err error) bool {
	var target *SessionNotFoundError
	return errors.As(err, &target)
}

// IsTransient classifies an error as likely recoverable. The invoker never
// retries, but the circuit breaker and logs use the classification.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if isNetworkError(err) {
		return true
	}
	if status := extractHTTPStatusCode(err); status > 0 {
		return isTransientHTTPStatus(status)
	}
	return false
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// HTTPStatusError carries an HTTP status code through the error chain.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("http status %d", e.StatusCode)
}

func extractHTTPStatusCode(err error) int {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

func isTransientHTTPStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
