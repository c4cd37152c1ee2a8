// Package retry wraps a single provider call with bounded attempts and
// error-class dependent backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"drisya/internal/infra"
	"drisya/internal/providers/image"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// ErrRetriesExhausted is matched by errors.Is on every *ExhaustedError.
var ErrRetriesExhausted = errors.New("retry: attempts exhausted")

// ExhaustedError reports that every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error { return []error{ErrRetriesExhausted, e.Last} }

// Decision is the classifier verdict for one failed attempt.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Classifier decides whether attempt (1-based) may be repeated and how long
// to wait first.
type Classifier func(err error, attempt int, base time.Duration) Decision

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy configures the envelope. Zero values fall back to the defaults.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// MaxDelay caps any single wait, including server-provided Retry-After.
	// Zero disables the cap.
	MaxDelay time.Duration
	Classify Classifier
	Sleep    Sleeper
	Logger   *infra.Logger
}

// Outcome is the retry state of one envelope run.
type Outcome struct {
	Attempts int
	Delays   []time.Duration
}

// Do invokes op until it succeeds, fails terminally, or runs out of attempts.
// Terminal errors are returned unchanged; exhaustion returns *ExhaustedError.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, Outcome, error) {
	p = p.withDefaults()
	var (
		zero T
		out  Outcome
	)
	for attempt := 1; ; attempt++ {
		out.Attempts = attempt
		v, err := op(ctx, attempt)
		if err == nil {
			return v, out, nil
		}
		decision := p.Classify(err, attempt, p.BaseDelay)
		if !decision.Retry {
			return zero, out, err
		}
		if attempt >= p.MaxAttempts {
			return zero, out, &ExhaustedError{Attempts: attempt, Last: err}
		}
		delay := decision.Delay
		if delay < 0 {
			delay = 0
		}
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
		p.Logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", p.MaxAttempts).
			Dur("delay", delay).
			Msg("retry: transient failure, backing off")
		out.Delays = append(out.Delays, delay)
		if serr := p.Sleep(ctx, delay); serr != nil {
			return zero, out, fmt.Errorf("retry: canceled after %d attempts: %w", attempt, errors.Join(serr, err))
		}
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.Classify == nil {
		p.Classify = DefaultClassifier
	}
	if p.Sleep == nil {
		p.Sleep = SleepContext
	}
	if p.Logger == nil {
		p.Logger = infra.NopLogger()
	}
	return p
}

// DefaultClassifier implements the provider backoff rules: rate limits wait
// for Retry-After when present and 2^attempt seconds otherwise; outages and
// timeouts wait attempt*base; everything else is terminal.
func DefaultClassifier(err error, attempt int, base time.Duration) Decision {
	if pe, ok := image.AsProviderError(err); ok {
		switch pe.Kind {
		case image.KindRateLimited:
			if pe.HasRetryAfter {
				return Decision{Retry: true, Delay: pe.RetryAfter}
			}
			return Decision{Retry: true, Delay: time.Duration(1<<min(attempt, 16)) * time.Second}
		case image.KindProviderUnavailable:
			return Decision{Retry: true, Delay: time.Duration(attempt) * base}
		default:
			return Decision{}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Decision{Retry: true, Delay: time.Duration(attempt) * base}
	}
	return Decision{}
}

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
