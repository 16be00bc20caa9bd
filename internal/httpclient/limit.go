package httpclient

import (
	"errors"
	"fmt"
	"io"
)

// Body read caps. Tool results and search matches come back on the large
// cap; error bodies are only quoted into messages and get the small one.
const (
	MaxBodyBytes      = 1 << 20
	MaxErrorBodyBytes = 4 << 10
)

// BodyTooLargeError reports a response body that exceeded its read cap.
type BodyTooLargeError struct {
	Limit int64
}

func (e *BodyTooLargeError) Error() string {
	return fmt.Sprintf("response body larger than %d bytes", e.Limit)
}

// IsBodyTooLarge reports whether err means a response body exceeded its cap.
func IsBodyTooLarge(err error) bool {
	var tooLarge *BodyTooLargeError
	return errors.As(err, &tooLarge)
}

// ReadBody drains r up to limit bytes. A non-positive limit falls back to
// MaxBodyBytes; a body with bytes left past the cap is an error, never a
// silent truncation.
func ReadBody(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = MaxBodyBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return nil, err
	}
	var extra [1]byte
	if n, _ := r.Read(extra[:]); n > 0 {
		return nil, &BodyTooLargeError{Limit: limit}
	}
	return data, nil
}
