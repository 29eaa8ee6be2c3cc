package kvstore

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	ldbutil "github.com/syndtr/goleveldb/leveldb/util"
)

// lockFileName is the sentinel file that prevents two processes from
// opening the same data directory concurrently.
const lockFileName = "LOCK"

// Store is a column-family key-value store backed by a single LevelDB
// instance. Column families are modeled as key prefixes rather than
// separate LevelDB databases, following infrastructure/db/dbaccess's
// layering of logical stores atop one physical ldb.LevelDB.
type Store struct {
	path string
	ldb  *leveldb.DB

	// lockFile is held open for the process lifetime; its mere presence
	// (plus the OS advisory lock taken by goleveldb itself on the
	// directory) guards against two processes opening the same data
	// directory concurrently.
	lockFile *os.File

	mu sync.Mutex
}

// Open opens (creating if necessary) a Store at the given data directory.
// It fails if another process already holds the LOCK sentinel.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, errors.Wrap(err, "failed to create data directory")
	}

	lockPath := filepath.Join(dataDir, lockFileName)
	lockFile, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.Errorf("data directory %s is locked by another process (found %s)", dataDir, lockPath)
		}
		return nil, errors.Wrap(err, "failed to create LOCK sentinel")
	}

	db, err := leveldb.OpenFile(filepath.Join(dataDir, "db"), nil)
	if err != nil {
		lockFile.Close()
		os.Remove(lockPath)
		return nil, errors.Wrap(err, "failed to open leveldb")
	}

	return &Store{path: dataDir, ldb: db, lockFile: lockFile}, nil
}

// Close closes the underlying database and releases the LOCK sentinel.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.ldb.Close()
	s.lockFile.Close()
	os.Remove(filepath.Join(s.path, lockFileName))
	return err
}

// Get implements DataAccessor.
func (s *Store) Get(key *Key) ([]byte, error) {
	value, err := s.ldb.Get(key.Encode(), nil)
	if err != nil {
		if errors.Is(err, ldberrors.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

// Has implements DataAccessor.
func (s *Store) Has(key *Key) (bool, error) {
	return s.ldb.Has(key.Encode(), nil)
}

// Put implements DataAccessor.
func (s *Store) Put(key *Key, value []byte) error {
	return s.ldb.Put(key.Encode(), value, nil)
}

// Delete implements DataAccessor.
func (s *Store) Delete(key *Key) error {
	return s.ldb.Delete(key.Encode(), nil)
}

// IteratePrefix iterates all entries in columnFamily whose key bytes start
// with prefix, in ascending key order, invoking visit for each. Iteration
// stops early if visit returns false.
func (s *Store) IteratePrefix(columnFamily string, prefix []byte, visit func(Entry) bool) error {
	cfPrefix := NewKey(columnFamily, prefix).Encode()
	iter := s.ldb.NewIterator(ldbutil.BytesPrefix(cfPrefix), nil)
	defer iter.Release()

	cfHeaderLen := len(columnFamily) + 1
	for iter.Next() {
		rawKey := iter.Key()
		entry := Entry{
			Key:   append([]byte(nil), rawKey[cfHeaderLen:]...),
			Value: append([]byte(nil), iter.Value()...),
		}
		if !visit(entry) {
			break
		}
	}
	return iter.Error()
}

// Batch accumulates writes across one or more column families for atomic
// commit.
type Batch struct {
	store *Store
	ldb   *leveldb.Batch
}

// OpenBatch begins a new batch. Writes made through the batch are not
// visible to readers until Commit is called.
func (s *Store) OpenBatch() *Batch {
	return &Batch{store: s, ldb: new(leveldb.Batch)}
}

// Put stages a write in the batch.
func (b *Batch) Put(key *Key, value []byte) error {
	b.ldb.Put(key.Encode(), value)
	return nil
}

// Delete stages a delete in the batch.
func (b *Batch) Delete(key *Key) error {
	b.ldb.Delete(key.Encode())
	return nil
}

// Get reads directly from the underlying store; batches in this design are
// write-only staging areas (matching goleveldb's Batch semantics), so reads
// always see the last committed state, never uncommitted batch writes.
func (b *Batch) Get(key *Key) ([]byte, error) {
	return b.store.Get(key)
}

// Has reads directly from the underlying store for the same reason as Get.
func (b *Batch) Has(key *Key) (bool, error) {
	return b.store.Has(key)
}

// Commit atomically applies every staged write and delete across all
// column families touched by the batch.
func (b *Batch) Commit() error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	return b.store.ldb.Write(b.ldb, nil)
}
