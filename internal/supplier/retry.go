package supplier

import "time"

// RetryPolicy bounds the request retry loop. Kept as an explicit value so
// the schedule is testable apart from the client.
type RetryPolicy struct {
	MaxAttempts      int
	TransportBackoff time.Duration
	RateLimitBackoff time.Duration
}

// DefaultRetryPolicy matches the supplier's documented guidance: three
// attempts, fixed 1s backoff on transport failure, 5s on 429.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      3,
		TransportBackoff: time.Second,
		RateLimitBackoff: 5 * time.Second,
	}
}
