package orch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"codepilot/pkg/logx"
	"codepilot/pkg/proposer"
)

// RetryConfig defines retry behavior for proposer calls.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// DefaultRetryConfig provides reasonable defaults.
//
//nolint:gochecknoglobals // default configuration value
var DefaultRetryConfig = RetryConfig{
	MaxRetries:    3,
	InitialDelay:  100 * time.Millisecond,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// RetryProposer wraps a Proposer with exponential-backoff retry. Breaker
// rejections and context cancellation are not retried.
type RetryProposer struct {
	inner  proposer.Proposer
	config RetryConfig
	logger *logx.Logger
}

func NewRetryProposer(inner proposer.Proposer, config RetryConfig) *RetryProposer {
	return &RetryProposer{
		inner:  inner,
		config: config,
		logger: logx.NewLogger("retry"),
	}
}

func (r *RetryProposer) Propose(ctx context.Context, req proposer.Request) (proposer.Proposal, error) {
	var out proposer.Proposal
	err := r.attempt(ctx, "propose", func() error {
		var err error
		out, err = r.inner.Propose(ctx, req)
		return err
	})
	return out, err
}

func (r *RetryProposer) Complete(ctx context.Context, prompt string) (string, error) {
	var out string
	err := r.attempt(ctx, "complete", func() error {
		var err error
		out, err = r.inner.Complete(ctx, prompt)
		return err
	})
	return out, err
}

func (r *RetryProposer) attempt(ctx context.Context, op string, call func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.delayFor(attempt)
			r.logger.Debug("%s attempt %d after %v (last error: %v)", op, attempt+1, delay, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if !shouldRetry(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, r.config.MaxRetries+1, lastErr)
}

func (r *RetryProposer) delayFor(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.BackoffFactor, float64(attempt-1))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	if r.config.Jitter {
		delay *= 0.5 + rand.Float64()/2 //nolint:gosec // jitter, not crypto
	}
	return time.Duration(delay)
}

func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var open *BreakerOpenError
	return !errors.As(err, &open)
}
