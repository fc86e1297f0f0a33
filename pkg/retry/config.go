package retry

import (
	"fmt"
	"time"
)

// BackoffStrategy selects how the delay grows between attempts.
type BackoffStrategy string

const (
	// BackoffConstant waits InitialDelay before every retry.
	BackoffConstant BackoffStrategy = "constant"
	// BackoffLinear waits InitialDelay * attempt.
	BackoffLinear BackoffStrategy = "linear"
	// BackoffExponential waits InitialDelay * multiplier^(attempt-1).
	BackoffExponential BackoffStrategy = "exponential"
)

// Config describes a bounded retry policy.
type Config struct {
	// MaxAttempts is the total number of attempts, the first one included.
	// 0 means unbounded.
	MaxAttempts int

	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration

	BackoffStrategy   BackoffStrategy
	BackoffMultiplier float64

	// Retryable decides whether an error is worth another attempt.
	// nil retries every error.
	Retryable func(err error) bool

	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Validate checks the policy and fills the multiplier default.
func (c *Config) Validate() error {
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must be >= 0, got %d", c.MaxAttempts)
	}
	if c.InitialDelay < 0 {
		return fmt.Errorf("initial_delay must be >= 0")
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("max_delay (%v) must be >= initial_delay (%v)", c.MaxDelay, c.InitialDelay)
	}

	switch c.BackoffStrategy {
	case BackoffConstant, BackoffLinear, BackoffExponential:
	default:
		return fmt.Errorf("invalid backoff strategy: %s", c.BackoffStrategy)
	}

	if c.BackoffMultiplier <= 0 {
		c.BackoffMultiplier = 2.0
	}
	return nil
}

// SchemaConfig is the policy used while dropping a conflicting table:
// five attempts, a fixed five second delay, no jitter.
func SchemaConfig() Config {
	return Config{
		MaxAttempts:     5,
		InitialDelay:    5 * time.Second,
		MaxDelay:        5 * time.Second,
		BackoffStrategy: BackoffConstant,
	}
}

// DownloadConfig is the policy used for dataset downloads.
func DownloadConfig() Config {
	return Config{
		MaxAttempts:       3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          10 * time.Second,
		BackoffStrategy:   BackoffExponential,
		BackoffMultiplier: 2.0,
	}
}

// UnprocessedConfig is the policy used to resubmit the part of a batch a
// backend did not accept.
func UnprocessedConfig() Config {
	return Config{
		MaxAttempts:       5,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          8 * time.Second,
		BackoffStrategy:   BackoffExponential,
		BackoffMultiplier: 2.0,
	}
}
