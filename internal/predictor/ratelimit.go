package predictor

import (
	"golang.org/x/time/rate"
)

const (
	defaultRPS   = 20.0
	defaultBurst = 40
)

// newLimiter builds the outbound limiter. Non-positive values fall back to
// the defaults.
func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		rps = defaultRPS
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
