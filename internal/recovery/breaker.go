package recovery

import (
	"sync"
	"time"
)

// BreakerState is one of the three circuit breaker states.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// BreakerConfig controls a CircuitBreaker's thresholds.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // consecutive half-open successes before closing
	ResetTimeout     time.Duration // time to wait in Open before probing (HalfOpen)
	MaxResetTimeout  time.Duration // cap on the doubling reset timeout
}

// DefaultBreakerConfig mirrors the original recovery suite's defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		ResetTimeout:      30 * time.Second,
		MaxResetTimeout:   5 * time.Minute,
	}
}

// CircuitBreaker implements the classic Closed -> Open -> HalfOpen -> Closed
// state machine. A failure in HalfOpen reopens the circuit and doubles the
// reset timeout, capped at MaxResetTimeout, so a persistently broken
// dependency backs off instead of being re-probed at a fixed cadence
// forever.
type CircuitBreaker struct {
	mu                  sync.Mutex
	cfg                 BreakerConfig
	state               BreakerState
	consecutiveFailures int
	consecutiveSuccess  int
	openedAt            time.Time
	currentResetTimeout time.Duration
}

// NewCircuitBreaker builds a CircuitBreaker starting Closed.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.ResetTimeout == 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.MaxResetTimeout == 0 {
		cfg.MaxResetTimeout = 5 * time.Minute
	}
	return &CircuitBreaker{cfg: cfg, state: BreakerClosed, currentResetTimeout: cfg.ResetTimeout}
}

// State returns the breaker's current state, transitioning Open->HalfOpen
// first if the reset timeout has elapsed.
func (c *CircuitBreaker) State() BreakerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeTransitionToHalfOpen()
	return c.state
}

// CanExecute reports whether a call should be allowed through right now.
func (c *CircuitBreaker) CanExecute() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeTransitionToHalfOpen()
	return c.state != BreakerOpen
}

func (c *CircuitBreaker) maybeTransitionToHalfOpen() {
	if c.state == BreakerOpen && time.Since(c.openedAt) >= c.currentResetTimeout {
		c.state = BreakerHalfOpen
		c.consecutiveSuccess = 0
	}
}

// RecordFailure registers a failed call. In Closed state it may trip the
// breaker to Open; in HalfOpen it immediately reopens and doubles the reset
// timeout (capped).
func (c *CircuitBreaker) RecordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case BreakerHalfOpen:
		c.open()
		c.currentResetTimeout *= 2
		if c.currentResetTimeout > c.cfg.MaxResetTimeout {
			c.currentResetTimeout = c.cfg.MaxResetTimeout
		}
	case BreakerClosed:
		c.consecutiveFailures++
		if c.consecutiveFailures >= c.cfg.FailureThreshold {
			c.open()
		}
	}
}

func (c *CircuitBreaker) open() {
	c.state = BreakerOpen
	c.openedAt = time.Now()
	c.consecutiveFailures = 0
	c.consecutiveSuccess = 0
}

// RecordSuccess registers a successful call. In HalfOpen, enough
// consecutive successes close the circuit and reset the backoff timeout.
func (c *CircuitBreaker) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case BreakerHalfOpen:
		c.consecutiveSuccess++
		if c.consecutiveSuccess >= c.cfg.SuccessThreshold {
			c.state = BreakerClosed
			c.consecutiveFailures = 0
			c.consecutiveSuccess = 0
			c.currentResetTimeout = c.cfg.ResetTimeout
		}
	case BreakerClosed:
		c.consecutiveFailures = 0
	}
}
