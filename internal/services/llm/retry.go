package llm

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RetryConfig bounds the backoff loop around provider calls.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// NewDefaultRetryConfig returns retry settings tuned for free-tier rate
// limits, where quota errors commonly ask for 30-60s waits.
func NewDefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     5,
		InitialBackoff: 45 * time.Second,
		MaxBackoff:     90 * time.Second,
		Multiplier:     1.5,
	}
}

// retryDelayRegex matches the retry hints providers embed in error text,
// e.g. "Please retry in 42.5s" or "retryDelay: 30s".
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// IsRateLimitError reports whether the error looks like a quota or
// rate-limit rejection.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota")
}

// ExtractRetryDelay pulls the provider-suggested retry delay out of an
// error message, or returns 0 when none is present.
func ExtractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}
	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}
	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// CalculateBackoff returns the wait before the given retry attempt.
// When the provider suggested a delay, that delay plus a safety margin
// wins; otherwise exponential backoff from InitialBackoff applies,
// capped at MaxBackoff.
func (c *RetryConfig) CalculateBackoff(attempt int, apiDelay time.Duration) time.Duration {
	if apiDelay > 0 {
		return apiDelay + 5*time.Second
	}

	backoff := float64(c.InitialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= c.Multiplier
	}
	if backoff > float64(c.MaxBackoff) {
		return c.MaxBackoff
	}
	return time.Duration(backoff)
}
