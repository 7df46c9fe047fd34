// Package retry implements the exponential backoff policy used around model provider calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrDeadlineExceeded is wrapped around the last attempt's error when the policy deadline ends the retries
var ErrDeadlineExceeded = errors.New("retry deadline exceeded")

// Policy configures exponential backoff for transient failures
type Policy struct {
	InitialDelay time.Duration // Delay before the first retry
	MaxDelay     time.Duration // Upper bound for any single delay
	Multiplier   float64       // Growth factor between consecutive delays
	Deadline     time.Duration // Cumulative bound on the whole call, retries included
}

// DefaultPolicy returns the policy used for model calls: 1s doubling up to 60s, abandoned after 15 minutes
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		Deadline:     900 * time.Second,
	}
}

// Validate checks that the policy can drive a backoff
func (p Policy) Validate() error {
	if p.InitialDelay <= 0 {
		return fmt.Errorf("initial delay must be positive, got %s", p.InitialDelay)
	}
	if p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("max delay %s is less than initial delay %s", p.MaxDelay, p.InitialDelay)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("multiplier must be at least 1, got %v", p.Multiplier)
	}
	if p.Deadline <= 0 {
		return fmt.Errorf("deadline must be positive, got %s", p.Deadline)
	}
	return nil
}

// Delays returns the first n delays the policy would wait between attempts, ignoring the deadline
func (p Policy) Delays(n int) []time.Duration {
	b := p.newBackOff()
	b.MaxElapsedTime = 0

	delays := make([]time.Duration, 0, n)
	for range n {
		delays = append(delays, b.NextBackOff())
	}
	return delays
}

func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.Multiplier
	b.MaxElapsedTime = p.Deadline
	// Delays are deterministic so the schedule matches the configured policy exactly
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// Do calls op until it succeeds, fails with an error that retryable rejects, or the policy deadline elapses. The
// context passed to op carries the deadline. notify, if not nil, is called before each wait. Do returns the number of
// attempts made alongside the final error.
func Do(
	ctx context.Context,
	p Policy,
	op func(ctx context.Context) error,
	retryable func(error) bool,
	notify func(err error, wait time.Duration),
) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, fmt.Errorf("invalid retry policy: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.Deadline)
	defer cancel()

	attempts := 0
	var lastErr error
	err := backoff.RetryNotify(
		func() error {
			attempts++
			err := op(ctx)
			if err == nil {
				return nil
			}
			lastErr = err
			if ctx.Err() != nil || !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		},
		backoff.WithContext(p.newBackOff(), ctx),
		notify,
	)
	if err == nil {
		return attempts, nil
	}

	if errors.Is(ctx.Err(), context.Canceled) || lastErr == nil {
		return attempts, err
	}
	// Either the backoff ran out of elapsed time on a transient error, or the deadline cut an attempt short
	if retryable(lastErr) || errors.Is(lastErr, context.DeadlineExceeded) {
		return attempts, fmt.Errorf("%w after %d attempts: %w", ErrDeadlineExceeded, attempts, lastErr)
	}
	return attempts, err
}
