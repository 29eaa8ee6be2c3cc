package trie

import (
	"github.com/ghostkasd/ghostkasd/internal/kvstore"
	"github.com/ghostkasd/ghostkasd/internal/primitives"
	"github.com/ghostkasd/ghostkasd/internal/types"
)

// AccountTrie wraps a raw Trie with the address/account encoding:
// keccak(address) -> rlp(account).
type AccountTrie struct {
	*Trie
}

// NewAccountTrie opens an AccountTrie at the given state root.
func NewAccountTrie(store *kvstore.Store, root primitives.Hash) (*AccountTrie, error) {
	t, err := New(store, root)
	if err != nil {
		return nil, err
	}
	return &AccountTrie{Trie: t}, nil
}

func accountKey(addr primitives.Address) primitives.Hash {
	return primitives.HashData(addr[:])
}

// GetAccount returns the account at addr, or the empty-account sentinel if
// addr has never been written to.
func (t *AccountTrie) GetAccount(addr primitives.Address) (types.Account, error) {
	key := accountKey(addr)
	raw, err := t.Get(key[:])
	if err != nil {
		return types.Account{}, err
	}
	if raw == nil {
		return types.EmptyAccount(), nil
	}
	return types.DecodeAccount(raw)
}

// PutAccount stages a write of account at addr.
func (t *AccountTrie) PutAccount(addr primitives.Address, account types.Account) error {
	key := accountKey(addr)
	return t.Put(key[:], account.Encode())
}

// SnapshotAccounts opens a read-only AccountTrie view at a historical root.
func (t *AccountTrie) SnapshotAccounts(root primitives.Hash) (*AccountTrie, error) {
	inner, err := t.Snapshot(root)
	if err != nil {
		return nil, err
	}
	return &AccountTrie{Trie: inner}, nil
}

// StorageKey derives the trie key for a contract storage slot:
// keccak(slot).
func StorageKey(slot primitives.Hash) primitives.Hash {
	return primitives.HashData(slot[:])
}
