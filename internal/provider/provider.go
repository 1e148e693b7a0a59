// Package provider adapts external API clients into the step payloads the
// pipeline consumes. Each adapter owns its provider's rate limit, retry
// policy, and error classification; callers only see model payloads.
package provider

import (
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/venuedex/enrich-cli/internal/resilience"
	"github.com/venuedex/enrich-cli/pkg/firecrawl"
	"github.com/venuedex/enrich-cli/pkg/places"
)

// classify maps a client error onto the transient/permanent split the
// retry loop understands. Client APIErrors carry the HTTP status; anything
// else (network, decode) is treated as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var placesErr *places.APIError
	if errors.As(err, &placesErr) {
		return resilience.ClassifyHTTPStatus(err, placesErr.StatusCode)
	}
	var fcErr *firecrawl.APIError
	if errors.As(err, &fcErr) {
		return resilience.ClassifyHTTPStatus(err, fcErr.StatusCode)
	}
	return &resilience.TransientError{Err: err}
}

// newLimiter builds a per-provider rate limiter. Zero or negative
// requests-per-second disables limiting.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

func timeout(secs, fallback int) time.Duration {
	if secs <= 0 {
		secs = fallback
	}
	return time.Duration(secs) * time.Second
}
