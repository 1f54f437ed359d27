package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sv2d/sv2d/internal/transport"
)

func TestMapSV2ErrorToSV1KnownCodes(t *testing.T) {
	code, mapped := MapSV2ErrorToSV1(transport.ErrInvalidJobID)
	assert.True(t, mapped)
	assert.Equal(t, sv1ErrJobNotFound, code)

	code, mapped = MapSV2ErrorToSV1(transport.ErrDuplicateShare)
	assert.True(t, mapped)
	assert.Equal(t, sv1ErrDuplicateShare, code)

	code, mapped = MapSV2ErrorToSV1(transport.ErrLowDifficultyShare)
	assert.True(t, mapped)
	assert.Equal(t, sv1ErrLowDifficulty, code)

	code, mapped = MapSV2ErrorToSV1(transport.ErrUnauthorized)
	assert.True(t, mapped)
	assert.Equal(t, sv1ErrUnauthorizedWorker, code)

	code, mapped = MapSV2ErrorToSV1(transport.ErrStaleShare)
	assert.True(t, mapped)
	assert.Equal(t, sv1ErrJobNotFound, code)

	code, mapped = MapSV2ErrorToSV1(transport.ErrInvalidNonce)
	assert.True(t, mapped)
	assert.Equal(t, sv1ErrLowDifficulty, code)
}

func TestMapSV2ErrorToSV1UnknownCode(t *testing.T) {
	code, mapped := MapSV2ErrorToSV1(0xff)
	assert.False(t, mapped)
	assert.Equal(t, sv1ErrOther, code)
}

func TestJobMapRoundTrip(t *testing.T) {
	m := NewJobMap()
	m.Put("sv1-job-1", 42)

	sv2ID, ok := m.SV2JobID("sv1-job-1")
	require.True(t, ok)
	assert.Equal(t, uint32(42), sv2ID)

	sv1ID, ok := m.SV1JobID(42)
	require.True(t, ok)
	assert.Equal(t, "sv1-job-1", sv1ID)
}

func TestJobMapUnknownLookups(t *testing.T) {
	m := NewJobMap()
	_, ok := m.SV2JobID("missing")
	assert.False(t, ok)

	_, ok = m.SV1JobID(999)
	assert.False(t, ok)
}

func TestJobMapPutReplacesPreviousMapping(t *testing.T) {
	m := NewJobMap()
	m.Put("job", 1)
	m.Put("job", 2)

	sv2ID, ok := m.SV2JobID("job")
	require.True(t, ok)
	assert.Equal(t, uint32(2), sv2ID)
}
