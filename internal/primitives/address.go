package primitives

import (
	"encoding/hex"

	"github.com/pkg/errors"
)

// AddressSize is the canonical width, in bytes, of an Address once
// normalized.
const AddressSize = 20

// paddedAddressSize is the width of the zero-padded 32-byte form the core
// must also accept on input (e.g. values arriving from 32-byte-word
// encoded sources).
const paddedAddressSize = 32

// ErrInvalidAddressFormat is returned when an address is neither 20 raw
// bytes nor a 32-byte value whose leading 12 bytes are zero.
var ErrInvalidAddressFormat = errors.New("InvalidAddressFormat")

// Address identifies an account. Internally it is always exactly 20 bytes;
// code elsewhere in the core must never branch on address width.
type Address [AddressSize]byte

// ZeroAddress is the Address value whose bytes are all zero.
var ZeroAddress Address

// NewAddress normalizes raw input bytes into an Address. A 20-byte input is
// accepted as-is. A 32-byte input is accepted only if its leading 12 bytes
// are zero, in which case it is stripped to the trailing 20 bytes. Any other
// shape fails with ErrInvalidAddressFormat.
func NewAddress(raw []byte) (Address, error) {
	var addr Address
	switch len(raw) {
	case AddressSize:
		copy(addr[:], raw)
		return addr, nil
	case paddedAddressSize:
		for _, b := range raw[:paddedAddressSize-AddressSize] {
			if b != 0 {
				return Address{}, ErrInvalidAddressFormat
			}
		}
		copy(addr[:], raw[paddedAddressSize-AddressSize:])
		return addr, nil
	default:
		return Address{}, ErrInvalidAddressFormat
	}
}

// String returns the address as a "0x"-prefixed hex string.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Less reports whether a sorts before other lexicographically by raw bytes.
func (a Address) Less(other Address) bool {
	for i := range a {
		if a[i] != other[i] {
			return a[i] < other[i]
		}
	}
	return false
}

// AddressFromPublicKey derives the 20-byte account address from the
// 64-byte uncompressed (x||y) encoding of a secp256k1 public key, without
// the 0x04 prefix: the low 20 bytes of its keccak256 digest.
func AddressFromPublicKey(uncompressedXY []byte) (Address, error) {
	if len(uncompressedXY) != 64 {
		return Address{}, errors.Errorf("invalid public key length %d, expected 64", len(uncompressedXY))
	}
	digest := HashData(uncompressedXY)
	return NewAddress(digest[HashSize-AddressSize:])
}

// ContractAddress computes the address of a newly created contract as
// keccak(sender || nonce)[12:].
func ContractAddress(sender Address, nonce uint64) Address {
	nonceBytes := make([]byte, 8)
	for i := 0; i < 8; i++ {
		nonceBytes[7-i] = byte(nonce >> (8 * i))
	}
	digest := HashData(sender[:], nonceBytes)
	addr, _ := NewAddress(digest[HashSize-AddressSize:])
	return addr
}
