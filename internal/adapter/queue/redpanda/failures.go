package redpanda

import (
	"errors"
	"time"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

// Failure codes stamped on dead-lettered jobs.
const (
	codeUpstreamRateLimit = "UPSTREAM_RATE_LIMIT"
	codeQuotaExceeded     = "QUOTA_EXCEEDED"
	codeUpstreamTimeout   = "UPSTREAM_TIMEOUT"
	codeSchemaInvalid     = "SCHEMA_INVALID"
	codeInvalidArgument   = "INVALID_ARGUMENT"
	codeNotFound          = "NOT_FOUND"
	codeInternal          = "INTERNAL"
)

func failureCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrUpstreamRateLimit):
		return codeUpstreamRateLimit
	case errors.Is(err, domain.ErrQuotaExceeded):
		return codeQuotaExceeded
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return codeUpstreamTimeout
	case errors.Is(err, domain.ErrSchemaInvalid):
		return codeSchemaInvalid
	case errors.Is(err, domain.ErrInvalidArgument):
		return codeInvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		return codeNotFound
	default:
		return codeInternal
	}
}

// retryable reports whether another delivery could succeed. Provider
// backpressure goes straight to the DLQ so the models get time to recover.
func retryable(code string) bool {
	switch code {
	case codeUpstreamTimeout, codeSchemaInvalid, codeInternal:
		return true
	default:
		return false
	}
}

// retryDelay is the wait before republishing attempt n (1-based).
func retryDelay(n int) time.Duration {
	d := time.Second << uint(n)
	if d > 30*time.Second || d <= 0 {
		return 30 * time.Second
	}
	return d
}
