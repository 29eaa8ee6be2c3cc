// Package kvstore is a transactional column-family abstraction over an
// on-disk log-structured engine, following the infrastructure/db/dbaccess
// and infrastructure/database/ffldb layering: a thin Key (column family +
// key) wrapper over github.com/syndtr/goleveldb, with atomic batch commits
// across column families and a LOCK sentinel guarding the data directory.
package kvstore

import "github.com/pkg/errors"

// Column families the core persists data under.
const (
	CFBlocks            = "blocks"
	CFBlockByHeight      = "block_by_height_index"
	CFDAGMetadata        = "dag_metadata"
	CFTransactions       = "transactions"
	CFReceipts           = "receipts"
	CFStateNodes         = "state_nodes"
	CFAccountsIndex      = "accounts_index"
	CFTipSet             = "tip_set"
	CFChainMeta          = "chain_meta"
)

// ErrNotFound is returned by Get when the key does not exist in the given
// column family.
var ErrNotFound = errors.New("key not found")

// Key identifies a single entry: a column family plus the raw key bytes
// within it. The on-disk encoding prefixes the column family name so that
// iterate_prefix queries never cross family boundaries.
type Key struct {
	ColumnFamily string
	Bytes        []byte
}

// NewKey builds a Key in the given column family.
func NewKey(columnFamily string, key []byte) *Key {
	return &Key{ColumnFamily: columnFamily, Bytes: key}
}

// Encode returns the on-disk representation of the key: the column family
// name, a NUL separator (column family names never contain one), then the
// raw key bytes.
func (k *Key) Encode() []byte {
	buf := make([]byte, 0, len(k.ColumnFamily)+1+len(k.Bytes))
	buf = append(buf, k.ColumnFamily...)
	buf = append(buf, 0)
	buf = append(buf, k.Bytes...)
	return buf
}

// DataAccessor is the read/write surface shared by Store and Batch, mirroring
// infrastructure/database/ffldb's DataAccessor interface.
type DataAccessor interface {
	Get(key *Key) ([]byte, error)
	Has(key *Key) (bool, error)
	Put(key *Key, value []byte) error
	Delete(key *Key) error
}

// Entry is a single key/value pair returned from IteratePrefix.
type Entry struct {
	Key   []byte
	Value []byte
}
