// Copyright (c) 2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package primitives holds the content-addressed identifiers, addresses and
// signatures shared by every other package in the core: hashes, 20-byte
// addresses, and secp256k1 signatures/public keys, plus their canonical
// binary encoding.
package primitives

import (
	"encoding/hex"

	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

// HashSize is the size, in bytes, of a content-addressed identifier.
const HashSize = 32

// Hash is a 32-byte content-addressed identifier used for blocks,
// transactions, state roots and accounts alike.
type Hash [HashSize]byte

// ZeroHash is the Hash value whose bytes are all zero.
var ZeroHash Hash

// String returns the Hash as a hex-encoded string, most-significant byte
// first (i.e. the reverse of the in-memory byte order, matching the
// teacher's daghash.Hash convention).
func (h Hash) String() string {
	for i, j := 0, len(h)-1; i < j; i, j = i+1, j-1 {
		h[i], h[j] = h[j], h[i]
	}
	return hex.EncodeToString(h[:])
}

// IsEqual returns whether h and other represent the same hash. A nil other
// is never equal to a non-nil receiver.
func (h *Hash) IsEqual(other *Hash) bool {
	if h == nil || other == nil {
		return h == other
	}
	return *h == *other
}

// Less reports whether h sorts before other lexicographically by raw bytes.
// GhostDAG uses this as the deterministic tiebreak between equal blue
// scores.
func (h Hash) Less(other Hash) bool {
	for i := range h {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}

// SetBytes copies the passed raw bytes (which must be the correct size) into
// the hash.
func (h *Hash) SetBytes(newHash []byte) error {
	if len(newHash) != HashSize {
		return errors.Errorf("invalid hash length of %d, expected %d", len(newHash), HashSize)
	}
	copy(h[:], newHash)
	return nil
}

// NewHashFromBytes returns a new Hash from a byte slice of the correct
// length.
func NewHashFromBytes(b []byte) (Hash, error) {
	var h Hash
	err := h.SetBytes(b)
	return h, err
}

// HashData returns the 32-byte keccak256 digest of the given content. It is
// the single cryptographic digest used across all content-addressed
// artifacts in the core (block hashes, transaction hashes, trie keys, state
// roots).
func HashData(data ...[]byte) Hash {
	hasher := sha3.NewLegacyKeccak256()
	for _, chunk := range data {
		hasher.Write(chunk)
	}
	var h Hash
	hasher.Sum(h[:0])
	return h
}
