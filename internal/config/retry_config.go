package config

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig holds retry settings for persisting analysis results.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts
	MaxRetries int
	// InitialDelay is the initial delay before first retry
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration
	// Multiplier is the exponential backoff multiplier
	Multiplier float64
	// Jitter adds randomness to prevent thundering herd
	Jitter bool
}

// GetRetryConfig returns the retry configuration.
// In test environments, uses much shorter delays for faster test execution.
func (c Config) GetRetryConfig() RetryConfig {
	if c.IsTest() {
		return RetryConfig{MaxRetries: c.RetryMaxRetries, InitialDelay: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond, Multiplier: 2.0}
	}
	return RetryConfig{
		MaxRetries:   c.RetryMaxRetries,
		InitialDelay: c.RetryInitialDelay,
		MaxDelay:     c.RetryMaxDelay,
		Multiplier:   c.RetryMultiplier,
		Jitter:       c.RetryJitter,
	}
}

// Backoff builds a bounded exponential backoff from the retry settings.
func (r RetryConfig) Backoff() backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.InitialDelay
	expo.MaxInterval = r.MaxDelay
	if r.Multiplier > 0 {
		expo.Multiplier = r.Multiplier
	}
	if !r.Jitter {
		expo.RandomizationFactor = 0
	}
	expo.MaxElapsedTime = 0
	expo.Reset()
	retries := r.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(expo, uint64(retries))
}
