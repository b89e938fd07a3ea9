package retry

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Config holds retry configuration
type Config struct {
	MaxRetries int           // Extra attempts after the first failure
	Backoff    time.Duration // Fixed sleep between attempts
	// RetryIf decides whether an error is worth another attempt.
	// Nil retries everything.
	RetryIf func(error) bool
}

// DefaultConfig matches the provider call policy: two extra attempts with a
// fixed two second backoff, transient errors only.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 2,
		Backoff:    2 * time.Second,
		RetryIf:    IsTransient,
	}
}

// Do executes fn, retrying per config. Non-retryable errors propagate
// immediately without sleeping.
func Do(ctx context.Context, config Config, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if config.RetryIf != nil && !config.RetryIf(err) {
			return err
		}
		if attempt == config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(config.Backoff):
		}
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", config.MaxRetries, lastErr)
}

// transientKeywords is the vocabulary of provider failures worth retrying:
// timeouts, gateway errors, throttling and quota exhaustion.
var transientKeywords = []string{
	"timeout",
	"timed out",
	"502",
	"503",
	"504",
	"429",
	"quota",
	"rate limit",
	"connection reset",
	"temporarily unavailable",
	"unavailable",
}

// IsTransient checks if an error looks like a transient provider failure
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, kw := range transientKeywords {
		if strings.Contains(errStr, kw) {
			return true
		}
	}
	return false
}
