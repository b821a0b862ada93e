package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Default policy values, matching the shared backoff discipline used for
// storage inserts and registry writes (1s, 2s, 4s).
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// ErrAttemptsExhausted wraps the final transient error after all attempts
// are used up. Check with errors.Is; the underlying cause remains
// available via errors.Unwrap / %w chains.
var ErrAttemptsExhausted = errors.New("retry: attempts exhausted")

// Classification describes whether a failed attempt is worth retrying.
type Classification int

const (
	// Transient marks contention that is expected to clear, such as the
	// store being locked by a concurrent writer. Transient errors trigger
	// another attempt after backoff.
	Transient Classification = iota

	// Permanent marks structural failures (constraint violations, bad
	// input) that retrying can never fix. Permanent errors propagate
	// immediately without further attempts.
	Permanent
)

// Classifier decides whether an error from an attempt is Transient or
// Permanent. It is only called with a non-nil error.
type Classifier func(err error) Classification

// Logger is the minimal logging interface the policy reports attempts to.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Policy is a reusable bounded exponential-backoff executor.
//
// The zero value is not useful; construct with New. A single Policy is
// safe for concurrent use from multiple goroutines: Do holds no mutable
// state on the Policy itself.
type Policy struct {
	// MaxAttempts is the total number of invocations (not re-tries).
	MaxAttempts int

	// BaseDelay is the sleep before attempt 2; each subsequent wait doubles.
	BaseDelay time.Duration

	// sleep is injectable for tests; defaults to a context-aware wait.
	sleep func(ctx context.Context, d time.Duration) error

	logger Logger
}

// New creates a Policy with the given bounds. Non-positive maxAttempts or
// negative baseDelay fall back to the defaults.
//
// Parameters:
//   - maxAttempts: Total invocations before giving up (default 3)
//   - baseDelay: First backoff delay, doubled each attempt (default 1s)
//
// Returns:
//   - *Policy: Ready-to-use executor
func New(maxAttempts int, baseDelay time.Duration) *Policy {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay < 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		sleep:       sleepContext,
	}
}

// SetLogger sets an optional logger for attempt/exhaustion observability.
// Every attempt, success after retry, and exhaustion is reported with the
// attempt number and wait time.
func (p *Policy) SetLogger(logger Logger) {
	p.logger = logger
}

// SetSleep replaces the inter-attempt wait function. Intended for tests
// that must not spend wall-clock time on backoff.
func (p *Policy) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	if sleep != nil {
		p.sleep = sleep
	}
}

// Do invokes op up to MaxAttempts times.
//
// Between attempts it waits BaseDelay * 2^(attempt-1). classify decides
// whether a failure is worth retrying: Permanent errors propagate
// immediately, Transient errors back off and retry. If every attempt
// fails on a transient error, the final error is returned wrapped in
// ErrAttemptsExhausted - it is never silently swallowed; the caller
// decides whether to skip the current reading and continue its cycle.
//
// Parameters:
//   - ctx: Cancels backoff waits; op should also honour it
//   - op: The operation to attempt
//   - classify: Error classifier (nil treats every error as Transient)
//
// Returns:
//   - error: nil on success, the permanent error, ctx error, or the
//     wrapped final transient error on exhaustion
func (p *Policy) Do(ctx context.Context, op func(ctx context.Context) error, classify Classifier) error {
	if classify == nil {
		classify = func(error) Classification { return Transient }
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 && p.logger != nil {
				p.logger.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		if classify(err) == Permanent {
			return err
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}

		wait := p.BaseDelay << (attempt - 1)
		if p.logger != nil {
			p.logger.Warn("transient failure, backing off",
				"attempt", attempt,
				"max_attempts", p.MaxAttempts,
				"wait", wait,
				"error", err,
			)
		}
		if sleepErr := sleep(ctx, wait); sleepErr != nil {
			return fmt.Errorf("retry cancelled after attempt %d: %w", attempt, sleepErr)
		}
	}

	if p.logger != nil {
		p.logger.Warn("attempts exhausted",
			"attempts", p.MaxAttempts,
			"error", lastErr,
		)
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, p.MaxAttempts, lastErr)
}

// sleepContext waits for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
