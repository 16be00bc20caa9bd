package httpclient

import (
	"context"
	"errors"
	"net/http"
	"time"

	parleyerrors "parley/internal/errors"
	"parley/internal/logging"
)

// breakerTransport gates every request to one backend through a shared
// circuit breaker. Outcomes are classified with the error taxonomy, so the
// breaker and the invoker agree on what counts as a backend fault.
type breakerTransport struct {
	next    http.RoundTripper
	breaker *parleyerrors.CircuitBreaker
}

// NewWithCircuitBreaker builds a timeout client whose transport refuses
// requests while the named backend's breaker is open.
func NewWithCircuitBreaker(timeout time.Duration, logger logging.Logger, name string) *http.Client {
	return NewWithCircuitBreakerConfig(timeout, logger, name, parleyerrors.DefaultCircuitBreakerConfig())
}

// NewWithCircuitBreakerConfig is NewWithCircuitBreaker with explicit breaker
// thresholds, used where the defaults are too slow for tests.
func NewWithCircuitBreakerConfig(timeout time.Duration, logger logging.Logger, name string, config parleyerrors.CircuitBreakerConfig) *http.Client {
	if name == "" {
		name = "backend"
	}
	client := New(timeout, logger)
	client.Transport = &breakerTransport{
		next:    client.Transport,
		breaker: parleyerrors.NewCircuitBreaker(name, config),
	}
	return client
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.breaker.Allow(); err != nil {
		return nil, err
	}
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		// The caller walking away says nothing about backend health.
		if errors.Is(err, context.Canceled) {
			t.breaker.Mark(nil)
		} else {
			t.breaker.Mark(err)
		}
		return nil, err
	}
	t.breaker.Mark(backendFault(resp.StatusCode))
	return resp, nil
}

// backendFault returns a non-nil error for statuses that indicate the
// backend itself is struggling. Client errors (4xx other than 429) are the
// request's fault and leave the breaker alone.
func backendFault(status int) error {
	if status < http.StatusBadRequest {
		return nil
	}
	statusErr := &parleyerrors.HTTPStatusError{StatusCode: status}
	if parleyerrors.IsTransient(statusErr) {
		return statusErr
	}
	return nil
}
