package modelfallback

import (
	"context"
	"errors"
	"strings"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

// ErrorKind is the closed set of provider failure categories.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindRateLimited
	KindQuotaExceeded
	KindTimeout
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindTimeout:
		return "timeout"
	case KindNotFound:
		return "not_found"
	default:
		return "other"
	}
}

// Sentinel returns the domain error for the kind, or nil for KindOther.
func (k ErrorKind) Sentinel() error {
	switch k {
	case KindRateLimited:
		return domain.ErrUpstreamRateLimit
	case KindQuotaExceeded:
		return domain.ErrQuotaExceeded
	case KindTimeout:
		return domain.ErrUpstreamTimeout
	case KindNotFound:
		return domain.ErrModelNotFound
	default:
		return nil
	}
}

// Classify maps a provider error to an ErrorKind. Typed sentinels win; the
// message is inspected for providers that only report status text.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindOther
	}
	switch {
	case errors.Is(err, domain.ErrQuotaExceeded):
		return KindQuotaExceeded
	case errors.Is(err, domain.ErrUpstreamRateLimit), errors.Is(err, domain.ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, domain.ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, domain.ErrModelNotFound), errors.Is(err, domain.ErrNotFound):
		return KindNotFound
	}

	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "quota"), strings.Contains(s, "resource_exhausted"), strings.Contains(s, "resource exhausted"):
		return KindQuotaExceeded
	case strings.Contains(s, "429"), strings.Contains(s, "rate limit"), strings.Contains(s, "too many requests"):
		return KindRateLimited
	case strings.Contains(s, "timeout"), strings.Contains(s, "timed out"), strings.Contains(s, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(s, "404"), strings.Contains(s, "not found"):
		return KindNotFound
	default:
		return KindOther
	}
}
