package request

import (
	"time"

	"golang.org/x/time/rate"
)

// NewRateLimit creates a rate limiter from a time interval and how many
// actions are allowed within it, broken down to an actions-per-second basis.
// Burst is kept at one as bursting is not supported for outbound requests.
func NewRateLimit(interval time.Duration, actions int) *rate.Limiter {
	if actions <= 0 || interval <= 0 {
		// Unrestricted
		return rate.NewLimiter(rate.Inf, 1)
	}

	rps := float64(actions) / interval.Seconds()
	return rate.NewLimiter(rate.Limit(rps), 1)
}
