package orch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codepilot/pkg/logx"
	"codepilot/pkg/metrics"
	"codepilot/pkg/proposer"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig defines circuit breaker behavior.
type BreakerConfig struct {
	FailureThreshold   int
	SuccessThreshold   int
	Timeout            time.Duration
	MaxConcurrentCalls int
}

// DefaultBreakerConfig provides reasonable defaults.
//
//nolint:gochecknoglobals // default configuration value
var DefaultBreakerConfig = BreakerConfig{
	FailureThreshold:   5,
	SuccessThreshold:   3,
	Timeout:            30 * time.Second,
	MaxConcurrentCalls: 3,
}

// BreakerOpenError is returned when the circuit rejects a request.
type BreakerOpenError struct {
	State CircuitState
}

func (e *BreakerOpenError) Error() string {
	return fmt.Sprintf("circuit breaker is %s", e.State)
}

// BreakerProposer wraps a Proposer with the circuit breaker pattern.
//
//nolint:govet // fieldalignment: logical grouping preferred
type BreakerProposer struct {
	name            string
	inner           proposer.Proposer
	config          BreakerConfig
	logger          *logx.Logger
	metrics         *metrics.Metrics
	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	successCount    int
	halfOpenCalls   int
	lastFailureTime time.Time
}

func NewBreakerProposer(name string, inner proposer.Proposer, config BreakerConfig, m *metrics.Metrics) *BreakerProposer {
	return &BreakerProposer{
		name:    name,
		inner:   inner,
		config:  config,
		logger:  logx.NewLogger("breaker"),
		metrics: m,
		state:   CircuitClosed,
	}
}

func (b *BreakerProposer) Propose(ctx context.Context, req proposer.Request) (proposer.Proposal, error) {
	if err := b.allowRequest(); err != nil {
		return proposer.Proposal{}, err
	}
	resp, err := b.inner.Propose(ctx, req)
	b.recordResult(err == nil)
	if err != nil {
		return resp, fmt.Errorf("propose: %w", err)
	}
	return resp, nil
}

func (b *BreakerProposer) Complete(ctx context.Context, prompt string) (string, error) {
	if err := b.allowRequest(); err != nil {
		return "", err
	}
	resp, err := b.inner.Complete(ctx, prompt)
	b.recordResult(err == nil)
	if err != nil {
		return resp, fmt.Errorf("complete: %w", err)
	}
	return resp, nil
}

// State returns the current circuit state.
func (b *BreakerProposer) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *BreakerProposer) allowRequest() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if time.Since(b.lastFailureTime) >= b.config.Timeout {
			b.setState(CircuitHalfOpen)
			b.halfOpenCalls = 1
			return nil
		}
		return &BreakerOpenError{State: CircuitOpen}
	case CircuitHalfOpen:
		if b.halfOpenCalls >= b.config.MaxConcurrentCalls {
			return &BreakerOpenError{State: CircuitHalfOpen}
		}
		b.halfOpenCalls++
		return nil
	}
	return nil
}

func (b *BreakerProposer) recordResult(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.failureCount = 0
		switch b.state {
		case CircuitHalfOpen:
			b.successCount++
			if b.successCount >= b.config.SuccessThreshold {
				b.setState(CircuitClosed)
				b.successCount = 0
				b.halfOpenCalls = 0
			}
		case CircuitClosed, CircuitOpen:
		}
		return
	}

	b.failureCount++
	b.lastFailureTime = time.Now()
	b.successCount = 0
	if b.state == CircuitHalfOpen || b.failureCount >= b.config.FailureThreshold {
		b.setState(CircuitOpen)
		b.halfOpenCalls = 0
	}
}

// setState records a transition; callers hold b.mu.
func (b *BreakerProposer) setState(next CircuitState) {
	if b.state == next {
		return
	}
	b.logger.Warn("circuit %s: %s -> %s", b.name, b.state, next)
	b.state = next
	if b.metrics != nil {
		b.metrics.BreakerState.WithLabelValues(b.name).Set(float64(next))
	}
}

// BreakerRegistry holds the process's circuit breakers. It is constructed
// explicitly and passed by reference; tests build their own instance
// instead of resetting a singleton.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*BreakerProposer
	config   BreakerConfig
	metrics  *metrics.Metrics
}

func NewBreakerRegistry(config BreakerConfig, m *metrics.Metrics) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*BreakerProposer),
		config:   config,
		metrics:  m,
	}
}

// Get returns the named breaker, wrapping inner on first use.
func (r *BreakerRegistry) Get(name string, inner proposer.Proposer) *BreakerProposer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := NewBreakerProposer(name, inner, r.config, r.metrics)
	r.breakers[name] = b
	return b
}
