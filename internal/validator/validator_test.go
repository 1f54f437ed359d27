package validator

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sv2d/sv2d/internal/domain"
	"github.com/sv2d/sv2d/internal/sv2derr"
)

func TestDifficultyToTarget(t *testing.T) {
	one := DifficultyToTarget(1)
	assert.Equal(t, maxTarget.String(), one.String())

	two := DifficultyToTarget(2)
	half := new(big.Int).Div(maxTarget, big.NewInt(2))
	assert.Equal(t, half.String(), two.String())

	assert.Equal(t, maxTarget.String(), DifficultyToTarget(0).String(), "non-positive difficulty falls back to 1")
}

func TestBuildHeaderFieldLayout(t *testing.T) {
	prevHash := make([]byte, 32)
	for i := range prevHash {
		prevHash[i] = byte(i)
	}
	merkleRoot := make([]byte, 32)
	for i := range merkleRoot {
		merkleRoot[i] = byte(255 - i)
	}

	h := BuildHeader(2, prevHash, merkleRoot, 0x11223344, 0x55667788, 0x9abcdef0)

	assert.Equal(t, byte(2), h[0])
	assert.Equal(t, byte(0), h[1])
	assert.Equal(t, prevHash, []byte(h[4:36]))
	assert.Equal(t, merkleRoot, []byte(h[36:68]))
}

func TestHeaderHashIsDoubleSHA256(t *testing.T) {
	var h Header80
	hash := h.Hash()
	assert.Len(t, hash, 32)
	// hashing an all-zero header twice must reproduce the same digest
	hash2 := h.Hash()
	assert.Equal(t, hash, hash2)
}

func TestDuplicateTrackerRecordsOnce(t *testing.T) {
	tracker := NewDuplicateTracker(10)
	assert.False(t, tracker.SeenOrRecord("a"), "first sighting is never a duplicate")
	assert.True(t, tracker.SeenOrRecord("a"), "second sighting of the same key is a duplicate")
	assert.False(t, tracker.SeenOrRecord("b"), "a different key is independent")
}

func newValidTemplate() *domain.WorkTemplate {
	return &domain.WorkTemplate{
		JobID:    "job-1",
		PrevHash: string(make([]byte, 32)),
		Version:  1,
		Bits:     "1d00ffff",
		MinTime:  1000,
		CurTime:  1000,
	}
}

func baseInput() ValidateInput {
	return ValidateInput{
		Connection: &domain.Connection{Authorized: true, Difficulty: 1},
		Template:   newValidTemplate(),
		Share: &domain.Share{
			JobID:       "job-1",
			Extranonce2: "aabbccdd",
			NTime:       1000,
			Nonce:       0,
		},
		ExpectedEN2Len: 4,
	}
}

func TestValidateRejectsUnauthorizedConnection(t *testing.T) {
	in := baseInput()
	in.Connection.Authorized = false

	result, err := Validate(in)
	assert.Equal(t, domain.ShareInvalid, result)
	require.Error(t, err)
	assert.ErrorIs(t, err, sv2derr.ErrNotAuthorized)
}

func TestValidateRejectsStaleJob(t *testing.T) {
	in := baseInput()
	in.Share.JobID = "job-999"

	result, err := Validate(in)
	assert.Equal(t, domain.ShareInvalid, result)
	assert.ErrorIs(t, err, sv2derr.ErrStaleJob)
}

func TestValidateRejectsMissingTemplate(t *testing.T) {
	in := baseInput()
	in.Template = nil

	result, err := Validate(in)
	assert.Equal(t, domain.ShareInvalid, result)
	assert.ErrorIs(t, err, sv2derr.ErrStaleJob)
}

func TestValidateRejectsNTimeOutsideWindow(t *testing.T) {
	in := baseInput()
	in.Share.NTime = 500 // below MinTime

	result, err := Validate(in)
	assert.Equal(t, domain.ShareInvalid, result)
	assert.ErrorIs(t, err, sv2derr.ErrStaleJob)
}

func TestValidateRejectsWrongExtranonce2Length(t *testing.T) {
	in := baseInput()
	in.Share.Extranonce2 = "aabb" // 2 bytes, but ExpectedEN2Len is 4

	result, err := Validate(in)
	assert.Equal(t, domain.ShareInvalid, result)
	assert.ErrorIs(t, err, sv2derr.ErrStaleJob)
}

func TestValidateRejectsDuplicateShare(t *testing.T) {
	in := baseInput()
	in.Tracker = NewDuplicateTracker(10)
	in.Tracker.SeenOrRecord(in.Share.DuplicateKey())

	result, err := Validate(in)
	assert.Equal(t, domain.ShareInvalid, result)
	assert.ErrorIs(t, err, sv2derr.ErrDuplicateShare)
}

func TestValidateRejectsBelowConnectionDifficulty(t *testing.T) {
	in := baseInput()
	// A target of exactly zero can never be met by any real hash, forcing
	// the difficulty check to fail regardless of the computed header hash.
	in.Connection.Difficulty = 1
	in.Connection.Difficulty = 1e300 // drives DifficultyToTarget toward zero

	result, err := Validate(in)
	assert.Equal(t, domain.ShareInvalid, result)
	assert.ErrorIs(t, err, sv2derr.ErrDifficultyTooLow)
}

func TestExpiresWindow(t *testing.T) {
	tmpl := &domain.WorkTemplate{MinTime: 100, CurTime: 200}
	min, max := tmpl.ExpiresWindow()
	assert.Equal(t, uint32(100), min)
	assert.Equal(t, uint32(7400), max)
}

func TestValidateCheckedOrder(t *testing.T) {
	// Connection auth is checked before job freshness: an unauthorized
	// connection submitting against a stale job still reports ErrNotAuthorized.
	in := baseInput()
	in.Connection.Authorized = false
	in.Share.JobID = "job-999"

	_, err := Validate(in)
	assert.ErrorIs(t, err, sv2derr.ErrNotAuthorized)
}
