package validator

import (
	"encoding/binary"
	"math/big"
	"strconv"

	"github.com/decred/dcrd/lru"

	"github.com/sv2d/sv2d/internal/domain"
	"github.com/sv2d/sv2d/internal/sv2derr"
)

// Header80 is an assembled 80-byte Bitcoin block header ready for hashing:
// version(4) + prevhash(32) + merkleroot(32) + ntime(4) + nbits(4) + nonce(4).
type Header80 [80]byte

// BuildHeader assembles the 80-byte header from its fields.
func BuildHeader(version uint32, prevHash, merkleRoot []byte, ntime, nbits, nonce uint32) Header80 {
	var h Header80
	binary.LittleEndian.PutUint32(h[0:4], version)
	copy(h[4:36], prevHash)
	copy(h[36:68], merkleRoot)
	binary.LittleEndian.PutUint32(h[68:72], ntime)
	binary.LittleEndian.PutUint32(h[72:76], nbits)
	binary.LittleEndian.PutUint32(h[76:80], nonce)
	return h
}

// Hash returns the double-SHA256 of the header, in internal (little-endian)
// byte order.
func (h Header80) Hash() []byte {
	return doubleSHA256(h[:])
}

// HashAsTarget interprets the header hash as a big-endian integer for
// target comparison, reversing the byte order Bitcoin hashes are usually
// displayed in.
func HashAsTarget(hash []byte) *big.Int {
	reversed := make([]byte, len(hash))
	for i, b := range hash {
		reversed[len(hash)-1-i] = b
	}
	return new(big.Int).SetBytes(reversed)
}

// DuplicateTracker bounds the set of seen (extranonce2, ntime, nonce)
// triples per job, so a long-lived job's duplicate set cannot grow without
// bound.
type DuplicateTracker struct {
	cache *lru.Map[string, struct{}]
}

// NewDuplicateTracker builds a tracker capped at capacity entries per job.
func NewDuplicateTracker(capacity int) *DuplicateTracker {
	return &DuplicateTracker{cache: lru.NewMap[string, struct{}](capacity)}
}

// SeenOrRecord returns true if key was already recorded, otherwise records
// it and returns false.
func (d *DuplicateTracker) SeenOrRecord(key string) bool {
	if d.cache.Contains(key) {
		return true
	}
	d.cache.Put(key, struct{}{})
	return false
}

// ValidateInput bundles everything Validate needs to check one submitted
// share against its job's template and the connection's current authorized
// difficulty.
type ValidateInput struct {
	Connection      *domain.Connection
	Template        *domain.WorkTemplate
	Share           *domain.Share
	CoinbaseHash    []byte
	MerkleBranch    [][]byte
	ExpectedEN2Len  int
	BlockTarget     *big.Int
	Tracker         *DuplicateTracker
}

// Validate runs the share validation pipeline: authorization, job
// freshness, ntime window, extranonce length, header hash vs. target.
func Validate(in ValidateInput) (domain.ShareResult, error) {
	if !in.Connection.Authorized {
		return domain.ShareInvalid, sv2derr.New(sv2derr.KindAuth, "validator.Validate", sv2derr.ErrNotAuthorized)
	}

	if in.Template == nil || in.Share.JobID != in.Template.JobID {
		return domain.ShareInvalid, sv2derr.New(sv2derr.KindShareInvalid, "validator.Validate", sv2derr.ErrStaleJob)
	}

	min, max := in.Template.ExpiresWindow()
	if in.Share.NTime < min || in.Share.NTime > max {
		return domain.ShareInvalid, sv2derr.New(sv2derr.KindShareInvalid, "validator.Validate", sv2derr.ErrStaleJob)
	}

	if len(in.Share.Extranonce2)/2 != in.ExpectedEN2Len {
		return domain.ShareInvalid, sv2derr.New(sv2derr.KindShareInvalid, "validator.Validate", sv2derr.ErrStaleJob)
	}

	if in.Tracker != nil && in.Tracker.SeenOrRecord(in.Share.DuplicateKey()) {
		return domain.ShareInvalid, sv2derr.New(sv2derr.KindShareInvalid, "validator.Validate", sv2derr.ErrDuplicateShare)
	}

	nbits, err := strconv.ParseUint(in.Template.Bits, 16, 32)
	if err != nil {
		return domain.ShareInvalid, sv2derr.New(sv2derr.KindInternal, "validator.Validate", err)
	}

	root := ComputeRoot(in.CoinbaseHash, in.MerkleBranch)
	header := BuildHeader(in.Template.Version, []byte(in.Template.PrevHash), root, in.Share.NTime, uint32(nbits), in.Share.Nonce)
	hash := header.Hash()
	hashInt := HashAsTarget(hash)

	shareTarget := DifficultyToTarget(in.Connection.Difficulty)
	if hashInt.Cmp(shareTarget) > 0 {
		return domain.ShareInvalid, sv2derr.New(sv2derr.KindShareInvalid, "validator.Validate", sv2derr.ErrDifficultyTooLow)
	}

	if in.BlockTarget != nil && hashInt.Cmp(in.BlockTarget) <= 0 {
		return domain.ShareBlock, nil
	}
	return domain.ShareValid, nil
}

// maxTarget is the Bitcoin difficulty-1 target.
var maxTarget, _ = new(big.Int).SetString("00000000FFFF0000000000000000000000000000000000000000000000000000", 16)

// DifficultyToTarget converts a pool difficulty value into the target an
// accepted share's hash must not exceed.
func DifficultyToTarget(difficulty float64) *big.Int {
	if difficulty <= 0 {
		difficulty = 1
	}
	diffBig := new(big.Float).SetFloat64(difficulty)
	target := new(big.Float).Quo(new(big.Float).SetInt(maxTarget), diffBig)
	result, _ := target.Int(nil)
	return result
}
