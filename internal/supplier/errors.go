package supplier

import (
	"errors"
	"fmt"
)

// API-level error taxonomy. Transport, 401 and 429 failures are retried
// inside the client; only exhaustion surfaces these.
var (
	ErrMissingCredentials   = errors.New("supplier credentials missing")
	ErrAuthenticationFailed = errors.New("supplier authentication failed")
	ErrInvalidResponse      = errors.New("supplier response missing token")
	ErrUnauthorized         = errors.New("supplier rejected token after retry")
	ErrRateLimited          = errors.New("supplier rate limit exceeded after retry")
)

// APIError carries a non-retryable >=400 response.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("supplier api error: status %d", e.Code)
	}
	return fmt.Sprintf("supplier api error: status %d: %s", e.Code, e.Message)
}

// TransportError wraps a network-level failure that survived all retries.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("supplier transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
