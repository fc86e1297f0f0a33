package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrTooManyAttempts is returned once the attempt budget is spent.
var ErrTooManyAttempts = errors.New("too many attempts")

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep parks the calling goroutine on a timer. It returns ctx.Err() when the
// context ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State is the attempt counter of one retried operation. It is created per
// call and never shared, so two operations cannot consume each other's budget.
type State struct {
	config   Config
	attempts int
	sleep    SleepFunc
}

// NewState creates a fresh state for a single operation.
func NewState(config Config, sleep SleepFunc) *State {
	if sleep == nil {
		sleep = Sleep
	}
	return &State{config: config, sleep: sleep}
}

// Attempts returns the number of failed attempts recorded so far.
func (s *State) Attempts() int {
	return s.attempts
}

// Backoff records a failed attempt caused by cause. When the budget is spent it
// returns ErrTooManyAttempts wrapping cause, otherwise it waits for the next
// attempt.
func (s *State) Backoff(ctx context.Context, cause error) error {
	s.attempts++

	if s.config.MaxAttempts > 0 && s.attempts >= s.config.MaxAttempts {
		return fmt.Errorf("%w (%d): %w", ErrTooManyAttempts, s.config.MaxAttempts, cause)
	}

	delay := s.delay()
	if s.config.OnRetry != nil {
		s.config.OnRetry(s.attempts, cause, delay)
	}

	if err := s.sleep(ctx, delay); err != nil {
		return fmt.Errorf("context cancelled during retry: %w", err)
	}
	return nil
}

func (s *State) delay() time.Duration {
	var delay time.Duration

	switch s.config.BackoffStrategy {
	case BackoffLinear:
		delay = s.config.InitialDelay * time.Duration(s.attempts)
	case BackoffExponential:
		multiplier := math.Pow(s.config.BackoffMultiplier, float64(s.attempts-1))
		delay = time.Duration(float64(s.config.InitialDelay) * multiplier)
	default:
		delay = s.config.InitialDelay
	}

	if s.config.MaxDelay > 0 && delay > s.config.MaxDelay {
		delay = s.config.MaxDelay
	}
	return delay
}

// RetryableFunc is an operation that can be retried.
type RetryableFunc func(ctx context.Context) error

// Retryer runs operations under a Config.
type Retryer struct {
	config Config
	sleep  SleepFunc
}

// NewRetryer validates config and returns a Retryer.
func NewRetryer(config Config) (*Retryer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}
	return &Retryer{config: config, sleep: Sleep}, nil
}

// WithSleep replaces the wait function. Tests use it to skip real delays.
func (r *Retryer) WithSleep(sleep SleepFunc) *Retryer {
	r.sleep = sleep
	return r
}

// Do runs fn until it succeeds, returns a non-retryable error, or the budget
// is spent.
func (r *Retryer) Do(ctx context.Context, fn RetryableFunc) error {
	state := NewState(r.config, r.sleep)

	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if r.config.Retryable != nil && !r.config.Retryable(err) {
			return err
		}

		if ctx.Err() != nil {
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		}

		if err := state.Backoff(ctx, err); err != nil {
			return err
		}
	}
}
