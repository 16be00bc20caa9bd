package httpclient

import (
	"net/http"
	"time"

	"parley/internal/logging"
)

const defaultTimeout = 30 * time.Second

// loggingRoundTripper logs request latency and failures at debug level.
type loggingRoundTripper struct {
	base   http.RoundTripper
	logger logging.Logger
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start)
	if err != nil {
		t.logger.Warn("%s %s failed after %s: %v", req.Method, req.URL.Path, elapsed, err)
		return nil, err
	}
	t.logger.Debug("%s %s -> %d in %s", req.Method, req.URL.Path, resp.StatusCode, elapsed)
	return resp, nil
}

// New builds an HTTP client with the given timeout and request logging.
func New(timeout time.Duration, logger logging.Logger) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &loggingRoundTripper{
			base:   http.DefaultTransport,
			logger: logging.OrNop(logger),
		},
	}
}
