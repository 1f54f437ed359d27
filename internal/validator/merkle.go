// Package validator implements the share validation pipeline: merkle root
// assembly, block header hashing, and target comparison.
package validator

import (
	"crypto/sha256"
	"encoding/hex"
)

// BuildBranch computes the merkle branch for a coinbase at index 0, given
// the hashes of all other transactions in the block in order. The miner
// combines the branch with its own computed coinbase hash via ComputeRoot.
func BuildBranch(txHashes [][]byte) [][]byte {
	if len(txHashes) == 0 {
		return nil
	}

	var branch [][]byte
	hashes := make([][]byte, len(txHashes))
	copy(hashes, txHashes)

	for len(hashes) > 0 {
		branch = append(branch, hashes[0])
		if len(hashes) == 1 {
			break
		}

		var next [][]byte
		for i := 1; i < len(hashes); i += 2 {
			left := hashes[i]
			right := left
			if i+1 < len(hashes) {
				right = hashes[i+1]
			}
			combined := make([]byte, 0, len(left)+len(right))
			combined = append(combined, left...)
			combined = append(combined, right...)
			next = append(next, doubleSHA256(combined))
		}
		hashes = next
	}
	return branch
}

// ComputeRoot folds a coinbase hash up through branch to produce the merkle
// root. The coinbase is always the left operand at each level.
func ComputeRoot(coinbaseHash []byte, branch [][]byte) []byte {
	if len(branch) == 0 {
		return coinbaseHash
	}
	current := coinbaseHash
	for _, sibling := range branch {
		combined := make([]byte, 0, len(current)+len(sibling))
		combined = append(combined, current...)
		combined = append(combined, sibling...)
		current = doubleSHA256(combined)
	}
	return current
}

// BranchToHex renders a branch as hex strings for the SV1 mining.notify
// wire shape.
func BranchToHex(branch [][]byte) []string {
	out := make([]string, len(branch))
	for i, h := range branch {
		out[i] = hex.EncodeToString(h)
	}
	return out
}

func doubleSHA256(data []byte) []byte {
	h1 := sha256.Sum256(data)
	h2 := sha256.Sum256(h1[:])
	return h2[:]
}

// DoubleSHA256 exposes the package's double-SHA256 to callers assembling a
// coinbase transaction outside this package, e.g. to hash the coinbase once
// its extranonce has been stitched in.
func DoubleSHA256(data []byte) []byte {
	return doubleSHA256(data)
}

// ReverseBytes reverses b in place, converting between Bitcoin's internal
// (little-endian) byte order and the big-endian hex display order
// getblocktemplate returns hashes in.
func ReverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
