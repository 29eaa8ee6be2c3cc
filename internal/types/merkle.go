package types

import "github.com/ghostkasd/ghostkasd/internal/primitives"

func hashPair(left, right primitives.Hash) primitives.Hash {
	return primitives.HashData(left[:], right[:])
}

// MerkleRoot computes the root of a binary merkle tree over the given
// leaves, in order: each level pairs its hashes up and hashes them
// together, duplicating the trailing hash whenever a level has an odd
// count, until a single root remains. It is used for both
// transactions_root and receipts_root, so reordering either list changes
// the block hash.
func MerkleRoot(leaves []primitives.Hash) primitives.Hash {
	if len(leaves) == 0 {
		return primitives.ZeroHash
	}

	level := make([]primitives.Hash, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]primitives.Hash, len(level)/2)
		for i := range next {
			next[i] = hashPair(level[2*i], level[2*i+1])
		}
		level = next
	}
	return level[0]
}
