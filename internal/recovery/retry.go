// Package recovery implements the retry executor, circuit breaker and
// graceful degradation registry the daemon uses to survive transient
// failures in the Bitcoin RPC client, the database and other external
// dependencies without crashing the process.
package recovery

import (
	"context"
	"math/rand"
	"time"

	"github.com/sv2d/sv2d/internal/sv2derr"
)

// Strategy computes the delay before the nth retry attempt (0-indexed).
type Strategy interface {
	Delay(attempt int) time.Duration
}

// FixedStrategy retries after the same delay every time.
type FixedStrategy struct {
	Delay_ time.Duration
}

func (f FixedStrategy) Delay(attempt int) time.Duration { return f.Delay_ }

// LinearStrategy increases the delay by Increment per attempt, capped at Max.
type LinearStrategy struct {
	Initial   time.Duration
	Increment time.Duration
	Max       time.Duration
}

func (l LinearStrategy) Delay(attempt int) time.Duration {
	d := l.Initial + time.Duration(attempt)*l.Increment
	if d > l.Max {
		return l.Max
	}
	return d
}

// ExponentialBackoff doubles (or multiplies by Multiplier) the delay each
// attempt, capped at Max, with multiplicative jitter in [1-Jitter, 1+Jitter].
type ExponentialBackoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

func (e ExponentialBackoff) Delay(attempt int) time.Duration {
	d := float64(e.Initial)
	for i := 0; i < attempt; i++ {
		d *= e.Multiplier
	}
	if d > float64(e.Max) {
		d = float64(e.Max)
	}
	if e.Jitter > 0 {
		factor := 1 - e.Jitter + rand.Float64()*2*e.Jitter
		d *= factor
		if d > float64(e.Max) {
			d = float64(e.Max)
		}
	}
	return time.Duration(d)
}

// Config controls a RetryExecutor's behavior.
type Config struct {
	MaxRetries            int
	Strategy              Strategy
	RetryTimeout          time.Duration // 0 disables the per-attempt timeout
	EnableCircuitBreaker  bool
	CircuitBreakerConfig  BreakerConfig
}

// DefaultConfig mirrors the defaults exercised by the recovery test suite
// this package is grounded on: 5 retries, 1s initial / 30s max exponential
// backoff with a 2x multiplier and 0.1 jitter, circuit breaker enabled with
// a failure threshold of 5.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 5,
		Strategy: ExponentialBackoff{
			Initial:    time.Second,
			Max:        30 * time.Second,
			Multiplier: 2.0,
			Jitter:     0.1,
		},
		EnableCircuitBreaker: true,
		CircuitBreakerConfig: DefaultBreakerConfig(),
	}
}

// RetryPredicate decides whether an error returned by an operation should
// be retried.
type RetryPredicate func(error) bool

func defaultRetryPredicate(err error) bool {
	return sv2derr.IsRetryable(err)
}

// Executor runs operations with retry, optional per-attempt timeout, and an
// optional circuit breaker gate.
type Executor struct {
	cfg     Config
	breaker *CircuitBreaker
}

// NewExecutor builds an Executor from cfg. If cfg.EnableCircuitBreaker is
// set, an internal CircuitBreaker is created from cfg.CircuitBreakerConfig.
func NewExecutor(cfg Config) *Executor {
	e := &Executor{cfg: cfg}
	if cfg.EnableCircuitBreaker {
		e.breaker = NewCircuitBreaker(cfg.CircuitBreakerConfig)
	}
	return e
}

// CircuitBreakerState returns the executor's breaker state, or the zero
// value and false if no breaker is configured.
func (e *Executor) CircuitBreakerState() (BreakerState, bool) {
	if e.breaker == nil {
		return 0, false
	}
	return e.breaker.State(), true
}

// Execute runs op, retrying on any retryable error up to MaxRetries times.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) (interface{}, error)) (interface{}, error) {
	return e.ExecuteWithCondition(ctx, op, defaultRetryPredicate)
}

// ExecuteWithCondition runs op, retrying only while shouldRetry(err) is true.
func (e *Executor) ExecuteWithCondition(ctx context.Context, op func(context.Context) (interface{}, error), shouldRetry RetryPredicate) (interface{}, error) {
	if e.breaker != nil && !e.breaker.CanExecute() {
		return nil, sv2derr.New(sv2derr.KindInternal, "recovery.Execute", sv2derr.ErrCircuitOpen)
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if e.cfg.RetryTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, e.cfg.RetryTimeout)
		}
		result, err := op(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			if e.breaker != nil {
				e.breaker.RecordSuccess()
			}
			return result, nil
		}
		lastErr = err
		if e.breaker != nil {
			e.breaker.RecordFailure()
		}
		if !shouldRetry(err) {
			return nil, lastErr
		}
		if attempt == e.cfg.MaxRetries {
			break
		}
		delay := e.cfg.Strategy.Delay(attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}
