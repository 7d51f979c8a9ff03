package domain

import "errors"

// Retryable reports whether err is transient and worth another attempt.
// ParseFailure is handled separately at the GenerateJSON layer.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimited)
}

// BreakerRelevant reports whether err is a backend-health signal that should
// feed circuit-breaker accounting. Rejected and parse failures say nothing
// about backend health and are excluded.
func BreakerRelevant(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimited)
}
