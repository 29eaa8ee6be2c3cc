package trie

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/ghostkasd/ghostkasd/internal/kvstore"
	"github.com/ghostkasd/ghostkasd/internal/primitives"
)

// nodeCacheSize bounds the in-process node cache sitting in front of the KV
// store (SPEC_FULL.md domain stack: hashicorp/golang-lru).
const nodeCacheSize = 1 << 16

// Trie is a persistent Merkle-Patricia trie over a kvstore.Store. Put stages
// new nodes in an in-memory write buffer and moves this Trie's root at once,
// so Get and RootHash on the same Trie see the write; the nodes reach the KV
// store, and so other Trie instances, only when Commit flushes them.
// Old roots remain reachable (nothing is mutated in place) until pruned by
// a caller that stops referencing them.
type Trie struct {
	store *kvstore.Store
	cache *lru.Cache[primitives.Hash, []byte]

	mu    sync.Mutex
	root  primitives.Hash
	dirty map[primitives.Hash][]byte
}

// New opens a Trie at the given root (primitives.ZeroHash for an empty
// trie) over store.
func New(store *kvstore.Store, root primitives.Hash) (*Trie, error) {
	cache, err := lru.New[primitives.Hash, []byte](nodeCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate trie node cache")
	}
	return &Trie{
		store: store,
		cache: cache,
		root:  root,
		dirty: make(map[primitives.Hash][]byte),
	}, nil
}

// RootHash returns the 32-byte commitment of the trie's current root,
// including Put calls not yet committed.
func (t *Trie) RootHash() primitives.Hash {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.root
}

// Get returns the account (or EmptyAccount sentinel, via the caller's own
// decoding) stored under key, or nil if key has never been written.
func (t *Trie) Get(key []byte) ([]byte, error) {
	t.mu.Lock()
	root := t.root
	t.mu.Unlock()

	return t.lookup(root, keyToNibbles(key))
}

// Put stages a write of value under key. Get on this Trie sees it at once;
// its nodes reach the KV store only when Commit flushes the write buffer.
func (t *Trie) Put(key, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	newRoot, err := t.insert(t.root, keyToNibbles(key), value)
	if err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

// Commit flushes every dirty node to the KV store in a single batch and
// returns the new root.
func (t *Trie) Commit() (primitives.Hash, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.dirty) == 0 {
		return t.root, nil
	}

	batch := t.store.OpenBatch()
	for hash, encoded := range t.dirty {
		if err := batch.Put(kvstore.NewKey(kvstore.CFStateNodes, hash[:]), encoded); err != nil {
			return primitives.Hash{}, err
		}
		t.cache.Add(hash, encoded)
	}
	if err := batch.Commit(); err != nil {
		return primitives.Hash{}, errors.Wrap(err, "failed to commit trie nodes")
	}

	t.dirty = make(map[primitives.Hash][]byte)
	return t.root, nil
}

// Snapshot opens a new read-only Trie view at an arbitrary historical root
// over the same backing store, required for light validation and
// re-execution.
func (t *Trie) Snapshot(root primitives.Hash) (*Trie, error) {
	return New(t.store, root)
}

// loadNode reads a node by hash, checking the write buffer, then the cache,
// then the backing store.
func (t *Trie) loadNode(hash primitives.Hash) (*node, error) {
	if isEmptyRef(hash) {
		return nil, nil
	}
	if encoded, ok := t.dirty[hash]; ok {
		return decodeNode(encoded)
	}
	if encoded, ok := t.cache.Get(hash); ok {
		return decodeNode(encoded)
	}
	encoded, err := t.store.Get(kvstore.NewKey(kvstore.CFStateNodes, hash[:]))
	if err != nil {
		if err == kvstore.ErrNotFound {
			return nil, errors.Errorf("trie node %s referenced but missing from storage", hash)
		}
		return nil, err
	}
	t.cache.Add(hash, encoded)
	return decodeNode(encoded)
}

// stage records a node in the write buffer and returns its content
// address.
func (t *Trie) stage(n *node) primitives.Hash {
	encoded := n.encode()
	hash := primitives.HashData(encoded)
	t.dirty[hash] = encoded
	return hash
}

func (t *Trie) lookup(nodeHash primitives.Hash, nibbles []byte) ([]byte, error) {
	n, err := t.loadNode(nodeHash)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, nil
	}

	switch n.Kind {
	case kindLeaf:
		if bytesEqual(n.Path, nibbles) {
			return n.Value, nil
		}
		return nil, nil
	case kindExtension:
		if len(nibbles) < len(n.Path) || !bytesEqual(n.Path, nibbles[:len(n.Path)]) {
			return nil, nil
		}
		return t.lookup(n.Next, nibbles[len(n.Path):])
	case kindBranch:
		if len(nibbles) == 0 {
			return n.BranchValue, nil
		}
		return t.lookup(n.Children[nibbles[0]], nibbles[1:])
	default:
		return nil, errors.Errorf("unknown trie node kind %d", n.Kind)
	}
}

func (t *Trie) insert(nodeHash primitives.Hash, nibbles, value []byte) (primitives.Hash, error) {
	n, err := t.loadNode(nodeHash)
	if err != nil {
		return primitives.Hash{}, err
	}

	if n == nil {
		leaf := &node{Kind: kindLeaf, Path: append([]byte(nil), nibbles...), Value: value}
		return t.stage(leaf), nil
	}

	switch n.Kind {
	case kindLeaf:
		return t.insertIntoLeaf(n, nibbles, value)
	case kindExtension:
		return t.insertIntoExtension(n, nibbles, value)
	case kindBranch:
		return t.insertIntoBranch(n, nibbles, value)
	default:
		return primitives.Hash{}, errors.Errorf("unknown trie node kind %d", n.Kind)
	}
}

func (t *Trie) insertIntoLeaf(n *node, nibbles, value []byte) (primitives.Hash, error) {
	if bytesEqual(n.Path, nibbles) {
		leaf := &node{Kind: kindLeaf, Path: n.Path, Value: value}
		return t.stage(leaf), nil
	}

	shared := commonPrefixLen(n.Path, nibbles)
	branch := &node{Kind: kindBranch}

	if err := t.placeInBranch(branch, n.Path[shared:], n.Value); err != nil {
		return primitives.Hash{}, err
	}
	if err := t.placeInBranch(branch, nibbles[shared:], value); err != nil {
		return primitives.Hash{}, err
	}

	branchHash := t.stage(branch)
	if shared == 0 {
		return branchHash, nil
	}
	ext := &node{Kind: kindExtension, Path: append([]byte(nil), nibbles[:shared]...), Next: branchHash}
	return t.stage(ext), nil
}

func (t *Trie) insertIntoExtension(n *node, nibbles, value []byte) (primitives.Hash, error) {
	shared := commonPrefixLen(n.Path, nibbles)

	if shared == len(n.Path) {
		newNext, err := t.insert(n.Next, nibbles[shared:], value)
		if err != nil {
			return primitives.Hash{}, err
		}
		ext := &node{Kind: kindExtension, Path: n.Path, Next: newNext}
		return t.stage(ext), nil
	}

	branch := &node{Kind: kindBranch}
	if len(n.Path)-shared == 1 {
		branch.Children[n.Path[shared]] = n.Next
	} else {
		tailExt := &node{Kind: kindExtension, Path: append([]byte(nil), n.Path[shared+1:]...), Next: n.Next}
		branch.Children[n.Path[shared]] = t.stage(tailExt)
	}

	if err := t.placeInBranch(branch, nibbles[shared:], value); err != nil {
		return primitives.Hash{}, err
	}

	branchHash := t.stage(branch)
	if shared == 0 {
		return branchHash, nil
	}
	ext := &node{Kind: kindExtension, Path: append([]byte(nil), nibbles[:shared]...), Next: branchHash}
	return t.stage(ext), nil
}

func (t *Trie) insertIntoBranch(n *node, nibbles, value []byte) (primitives.Hash, error) {
	branch := &node{Kind: kindBranch, Children: n.Children, BranchValue: n.BranchValue}
	if len(nibbles) == 0 {
		branch.BranchValue = value
		return t.stage(branch), nil
	}

	newChild, err := t.insert(branch.Children[nibbles[0]], nibbles[1:], value)
	if err != nil {
		return primitives.Hash{}, err
	}
	branch.Children[nibbles[0]] = newChild
	return t.stage(branch), nil
}

// placeInBranch puts (path, value) into branch: an empty path sets the
// branch's own value; any other path becomes a leaf holding path[1:] under
// the child slot path[0]. Called only while constructing a brand-new branch node, so there
// is never an existing occupant to merge with.
func (t *Trie) placeInBranch(branch *node, path, value []byte) error {
	if len(path) == 0 {
		branch.BranchValue = value
		return nil
	}
	leaf := &node{Kind: kindLeaf, Path: append([]byte(nil), path[1:]...), Value: value}
	branch.Children[path[0]] = t.stage(leaf)
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
