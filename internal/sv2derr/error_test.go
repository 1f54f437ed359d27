package sv2derr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessageIncludesOpAndKind(t *testing.T) {
	err := New(KindValidation, "validator.Validate", errors.New("bad share"))
	assert.Equal(t, "validator.Validate: validation: bad share", err.Error())
}

func TestErrorMessageWithoutOp(t *testing.T) {
	err := New(KindInternal, "", errors.New("broke"))
	assert.Equal(t, "internal: broke", err.Error())
}

func TestErrorUnwrapsToCause(t *testing.T) {
	cause := ErrStaleJob
	err := New(KindShareInvalid, "op", cause)
	assert.ErrorIs(t, err, cause)
	assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", err), cause))
}

func TestDefaultRetryableByKind(t *testing.T) {
	assert.True(t, New(KindBitcoinRPC, "op", errors.New("x")).Retryable)
	assert.True(t, New(KindNetwork, "op", errors.New("x")).Retryable)
	assert.True(t, New(KindTimeout, "op", errors.New("x")).Retryable)
	assert.True(t, New(KindDatabase, "op", errors.New("x")).Retryable)
	assert.False(t, New(KindValidation, "op", errors.New("x")).Retryable)
	assert.False(t, New(KindConfig, "op", errors.New("x")).Retryable)
}

func TestRetryOverridesRetryable(t *testing.T) {
	err := New(KindValidation, "op", errors.New("x"))
	assert.False(t, err.Retryable)
	overridden := err.Retry(true)
	assert.True(t, overridden.Retryable)
	assert.False(t, err.Retryable, "Retry must not mutate the receiver")
}

func TestKindOf(t *testing.T) {
	err := New(KindAuth, "op", errors.New("x"))
	assert.Equal(t, KindAuth, KindOf(err))
	assert.Equal(t, KindInternal, KindOf(errors.New("untagged")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(KindNetwork, "op", errors.New("x"))))
	assert.False(t, IsRetryable(New(KindValidation, "op", errors.New("x"))))
	assert.False(t, IsRetryable(errors.New("untagged")))
}
