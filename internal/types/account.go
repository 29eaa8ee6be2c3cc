package types

import (
	"bytes"
	"io"

	"github.com/holiman/uint256"

	"github.com/ghostkasd/ghostkasd/internal/primitives"
)

// Account is the state entry the trie maps addresses to.
// Balances are 256-bit unsigned.
type Account struct {
	Nonce       uint64
	Balance     *uint256.Int
	CodeHash    primitives.Hash
	StorageRoot primitives.Hash
}

// EmptyAccount returns the sentinel value for an address with no state:
// zero nonce and balance, the hash of an empty byte string as code hash,
// and the zero hash as storage root. get(addr) on the trie returns this for
// any address never written to.
func EmptyAccount() Account {
	return Account{
		Nonce:       0,
		Balance:     new(uint256.Int),
		CodeHash:    EmptyCodeHash,
		StorageRoot: primitives.ZeroHash,
	}
}

// EmptyCodeHash is the keccak256 digest of the empty byte string, the
// CodeHash of every externally-owned (non-contract) account.
var EmptyCodeHash = primitives.HashData(nil)

// IsEmpty reports whether a is indistinguishable from EmptyAccount().
func (a Account) IsEmpty() bool {
	return a.Nonce == 0 && (a.Balance == nil || a.Balance.IsZero()) &&
		a.CodeHash == EmptyCodeHash && a.StorageRoot == primitives.ZeroHash
}

// Encode writes the account's canonical RLP-like encoding (fixed-width
// fields) used as the trie leaf value.
func (a Account) Encode() []byte {
	var buf bytes.Buffer
	_ = primitives.WriteUint64(&buf, a.Nonce)
	balance := a.Balance
	if balance == nil {
		balance = new(uint256.Int)
	}
	b := balance.Bytes32()
	buf.Write(b[:])
	buf.Write(a.CodeHash[:])
	buf.Write(a.StorageRoot[:])
	return buf.Bytes()
}

// DecodeAccount parses the encoding produced by Account.Encode.
func DecodeAccount(data []byte) (Account, error) {
	r := bytes.NewReader(data)
	var a Account
	var err error
	if a.Nonce, err = primitives.ReadUint64(r); err != nil {
		return Account{}, err
	}
	var balanceBytes [32]byte
	if _, err := io.ReadFull(r, balanceBytes[:]); err != nil {
		return Account{}, err
	}
	a.Balance = new(uint256.Int).SetBytes(balanceBytes[:])
	if a.CodeHash, err = primitives.ReadHash(r); err != nil {
		return Account{}, err
	}
	if a.StorageRoot, err = primitives.ReadHash(r); err != nil {
		return Account{}, err
	}
	return a, nil
}
