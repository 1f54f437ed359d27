package recovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 3,
		ResetTimeout:      50 * time.Millisecond,
		MaxResetTimeout:   time.Second,
	})

	cb.RecordFailure()
	cb.RecordFailure()

	assert.Equal(t, BreakerOpen, cb.State())
	assert.False(t, cb.CanExecute())
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 3,
		ResetTimeout:      20 * time.Millisecond,
		MaxResetTimeout:   time.Second,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, BreakerOpen, cb.State())

	time.Sleep(30 * time.Millisecond)

	assert.True(t, cb.CanExecute())
	assert.Equal(t, BreakerHalfOpen, cb.State())

	cb.RecordSuccess()
	cb.RecordSuccess()
	cb.RecordSuccess()
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreakerDoublesResetTimeoutOnHalfOpenFailure(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		ResetTimeout:      10 * time.Millisecond,
		MaxResetTimeout:   40 * time.Millisecond,
	})

	cb.RecordFailure()
	assert.Equal(t, BreakerOpen, cb.State())

	time.Sleep(15 * time.Millisecond)
	assert.True(t, cb.CanExecute())
	assert.Equal(t, BreakerHalfOpen, cb.State())

	cb.RecordFailure()
	assert.Equal(t, BreakerOpen, cb.State())
	assert.Equal(t, 20*time.Millisecond, cb.currentResetTimeout)
}
