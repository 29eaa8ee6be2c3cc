// Package dagstore is the persistent DAG store: blocks,
// parents_of/children_of/height indices and the tip set, plus the
// admission pipeline that gates every incoming block through signature,
// parent-known, selected-parent, timestamp and blue-score checks before
// classifying it with the ghostdag package and committing it atomically.
//
// Ported from blockdag/dag.go and blockdag/virtualblock.go: blocks are
// immutable content-addressed records, parent/child relationships are
// index tables rather than an in-memory pointer graph, and admission
// commits in a single KV batch so readers never observe a
// partially-admitted block. Ancestor queries use an in-memory BFS over
// the cached parent index with a small LRU of recent answers, a
// deliberate simplification of a persisted interval-tree reachability
// index (dbaccess/reachability.go): correct for the same
// non-strict-ancestor queries, without its O(1)-ish persisted lookup.
package dagstore

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/ghostkasd/ghostkasd/internal/chainspec"
	"github.com/ghostkasd/ghostkasd/internal/collaborators"
	"github.com/ghostkasd/ghostkasd/internal/ghostdag"
	"github.com/ghostkasd/ghostkasd/internal/kvstore"
	"github.com/ghostkasd/ghostkasd/internal/primitives"
	"github.com/ghostkasd/ghostkasd/internal/types"
)

const ancestryCacheSize = 1 << 16

type ancestryKey struct {
	ancestor   primitives.Hash
	descendant primitives.Hash
}

// Store is the DAG store actor: it owns its own
// state, accessed only through its methods (no external lock-sharing).
type Store struct {
	kv    *kvstore.Store
	spec  chainspec.ChainSpec
	clock collaborators.Clock

	mu sync.RWMutex

	headers  map[primitives.Hash]*types.BlockHeader
	parents  map[primitives.Hash][]primitives.Hash
	children map[primitives.Hash][]primitives.Hash
	ghostdagData map[primitives.Hash]*ghostdag.Data
	heightIndex  map[uint64][]primitives.Hash
	tipSet       map[primitives.Hash]struct{}

	finalizedHash primitives.Hash

	ancestryCache *lru.Cache[ancestryKey, bool]
}

// Open builds a Store over kv, loading its index tables into memory. The
// genesis block must already have been seeded via SeedGenesis on first
// startup, or be present in kv on subsequent opens.
func Open(kv *kvstore.Store, spec chainspec.ChainSpec, clock collaborators.Clock) (*Store, error) {
	cache, err := lru.New[ancestryKey, bool](ancestryCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate ancestry cache")
	}

	s := &Store{
		kv:           kv,
		spec:         spec,
		clock:        clock,
		headers:      make(map[primitives.Hash]*types.BlockHeader),
		parents:      make(map[primitives.Hash][]primitives.Hash),
		children:     make(map[primitives.Hash][]primitives.Hash),
		ghostdagData: make(map[primitives.Hash]*ghostdag.Data),
		heightIndex:  make(map[uint64][]primitives.Hash),
		tipSet:       make(map[primitives.Hash]struct{}),
		ancestryCache: cache,
	}

	if err := s.loadFromStorage(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadFromStorage() error {
	var loadErr error

	err := s.kv.IteratePrefix(kvstore.CFBlocks, nil, func(entry kvstore.Entry) bool {
		header, decodeErr := types.DecodeBlockHeader(entry.Value)
		if decodeErr != nil {
			loadErr = errors.Wrap(decodeErr, "corrupt block header")
			return false
		}
		hash := header.Hash()
		s.headers[hash] = header
		s.parents[hash] = header.Parents()
		return true
	})
	if err != nil {
		return errors.Wrap(err, "failed to load blocks")
	}
	if loadErr != nil {
		return loadErr
	}

	for hash, parents := range s.parents {
		for _, p := range parents {
			s.children[p] = append(s.children[p], hash)
		}
	}

	err = s.kv.IteratePrefix(kvstore.CFDAGMetadata, []byte("gd:"), func(entry kvstore.Entry) bool {
		hash, decodeErr := primitives.NewHashFromBytes(entry.Key[3:])
		if decodeErr != nil {
			loadErr = errors.Wrap(decodeErr, "corrupt ghostdag metadata key")
			return false
		}
		data, decodeErr := decodeGhostdagData(entry.Value)
		if decodeErr != nil {
			loadErr = errors.Wrap(decodeErr, "corrupt ghostdag metadata value")
			return false
		}
		s.ghostdagData[hash] = data
		s.heightIndex[heightOf(s.headers[hash])] = append(s.heightIndex[heightOf(s.headers[hash])], hash)
		return true
	})
	if err != nil {
		return errors.Wrap(err, "failed to load ghostdag data")
	}
	if loadErr != nil {
		return loadErr
	}

	tipBytes, err := s.kv.Get(kvstore.NewKey(kvstore.CFTipSet, []byte("tips")))
	if err == nil {
		tips, decodeErr := decodeHashList(tipBytes)
		if decodeErr == nil {
			for _, t := range tips {
				s.tipSet[t] = struct{}{}
			}
		}
	} else if err != kvstore.ErrNotFound {
		return err
	}

	finalizedBytes, err := s.kv.Get(kvstore.NewKey(kvstore.CFChainMeta, []byte("finalized")))
	if err == nil && len(finalizedBytes) == primitives.HashSize {
		h, _ := primitives.NewHashFromBytes(finalizedBytes)
		s.finalizedHash = h
	} else if err != nil && err != kvstore.ErrNotFound {
		return err
	}

	return nil
}

func heightOf(h *types.BlockHeader) uint64 {
	if h == nil {
		return 0
	}
	return h.Height
}

// SeedGenesis admits the genesis block directly, bypassing the normal
// pipeline: genesis has no parents and is its own selected-parent sentinel
// (the marker ghostdag.Classify's chain walk uses in place of a nil
// pointer).
func (s *Store) SeedGenesis(header *types.BlockHeader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := header.Hash()
	if _, exists := s.headers[hash]; exists {
		return nil
	}

	data := &ghostdag.Data{
		SelectedParent:     hash,
		BlueScore:          0,
		BluesAnticoneSizes: map[primitives.Hash]uint32{},
	}

	batch := s.kv.OpenBatch()
	if err := batch.Put(kvstore.NewKey(kvstore.CFBlocks, hash[:]), header.Encode()); err != nil {
		return err
	}
	if err := batch.Put(kvstore.NewKey(kvstore.CFDAGMetadata, append([]byte("gd:"), hash[:]...)), encodeGhostdagData(data)); err != nil {
		return err
	}
	if err := batch.Put(kvstore.NewKey(kvstore.CFTipSet, []byte("tips")), encodeHashList([]primitives.Hash{hash})); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return errors.Wrap(err, "failed to seed genesis")
	}

	s.headers[hash] = header
	s.parents[hash] = nil
	s.ghostdagData[hash] = data
	s.heightIndex[0] = append(s.heightIndex[0], hash)
	s.tipSet[hash] = struct{}{}
	s.finalizedHash = primitives.ZeroHash
	return nil
}

// Parents implements ghostdag.StoreView.
func (s *Store) Parents(hash primitives.Hash) ([]primitives.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	parents, ok := s.parents[hash]
	if !ok {
		return nil, ErrParentUnknown
	}
	return parents, nil
}

// GhostdagDataOf implements ghostdag.StoreView.
func (s *Store) GhostdagDataOf(hash primitives.Hash) (*ghostdag.Data, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.ghostdagData[hash]
	if !ok {
		return nil, ErrBlockNotFound
	}
	return data, nil
}

// Header returns the admitted header for hash.
func (s *Store) Header(hash primitives.Hash) (*types.BlockHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.headers[hash]
	if !ok {
		return nil, ErrBlockNotFound
	}
	return h, nil
}

// HeaderByHeight returns the admitted headers at a given height (possibly
// more than one, since height is not unique in a DAG).
func (s *Store) HeaderByHeight(height uint64) ([]*types.BlockHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hashes := s.heightIndex[height]
	headers := make([]*types.BlockHeader, len(hashes))
	for i, h := range hashes {
		headers[i] = s.headers[h]
	}
	return headers, nil
}

// Children returns the admitted children of hash.
func (s *Store) Children(hash primitives.Hash) []primitives.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]primitives.Hash(nil), s.children[hash]...)
}

// TipSet returns the current tip set.
func (s *Store) TipSet() []primitives.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tips := make([]primitives.Hash, 0, len(s.tipSet))
	for t := range s.tipSet {
		tips = append(tips, t)
	}
	return tips
}

// HasBlock reports whether hash has been admitted.
func (s *Store) HasBlock(hash primitives.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.headers[hash]
	return ok
}

// IsAncestorOf implements ghostdag.StoreView via BFS over the cached parent
// index, memoized in a bounded LRU (see package doc for the tradeoff this
// makes against a persisted reachability index).
func (s *Store) IsAncestorOf(ancestor, descendant primitives.Hash) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	key := ancestryKey{ancestor, descendant}
	if cached, ok := s.ancestryCache.Get(key); ok {
		return cached, nil
	}

	s.mu.RLock()
	visited := map[primitives.Hash]bool{descendant: true}
	queue := []primitives.Hash{descendant}
	found := false
search:
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, parent := range s.parents[current] {
			if parent == ancestor {
				found = true
				break search
			}
			if !visited[parent] {
				visited[parent] = true
				queue = append(queue, parent)
			}
		}
	}
	s.mu.RUnlock()

	s.ancestryCache.Add(key, found)
	return found, nil
}

// SelectedTip returns the tip with the greatest blue score, hash tiebreak
//.
func (s *Store) SelectedTip() (primitives.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedTipLocked()
}

func (s *Store) selectedTipLocked() (primitives.Hash, error) {
	if len(s.tipSet) == 0 {
		return primitives.Hash{}, errors.New("dag store has no tips")
	}
	var best primitives.Hash
	var bestScore uint64
	first := true
	for tip := range s.tipSet {
		data := s.ghostdagData[tip]
		if first || data.BlueScore > bestScore || (data.BlueScore == bestScore && tip.Less(best)) {
			best = tip
			bestScore = data.BlueScore
			first = false
		}
	}
	return best, nil
}

// SelectedChain walks selected-parent pointers from tip to genesis,
// returning hashes in tip-to-genesis order.
func (s *Store) SelectedChain(tip primitives.Hash) ([]primitives.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chain []primitives.Hash
	current := tip
	for {
		chain = append(chain, current)
		data, ok := s.ghostdagData[current]
		if !ok {
			return nil, ErrBlockNotFound
		}
		if data.SelectedParent == current {
			break
		}
		current = data.SelectedParent
	}
	return chain, nil
}

// AdmitBlock runs the full admission pipeline and, on success,
// commits the block atomically and returns its computed GhostDAG data.
func (s *Store) AdmitBlock(header *types.BlockHeader) (*ghostdag.Data, error) {
	hash := header.Hash()

	if s.HasBlock(hash) {
		return s.GhostdagDataOf(hash)
	}

	// 1. Verify block signature against producer_address.
	signer, err := primitives.RecoverAddress(header.SigningHash(), header.Signature)
	if err != nil {
		return nil, ErrSignatureInvalid
	}
	if signer != header.ProducerAddress {
		return nil, ErrSignatureInvalid
	}

	parents := header.Parents()
	if len(parents) == 0 {
		return nil, errors.New("non-genesis block must declare at least one parent")
	}

	// 2. Verify all parents are admitted.
	for _, p := range parents {
		if !s.HasBlock(p) {
			return nil, ErrParentsNotAllKnown
		}
	}

	// 3. Verify selected_parent = argmax_blue_score(parents), hash tiebreak.
	expectedSelectedParent, err := ghostdag.SelectParent(s, parents)
	if err != nil {
		return nil, err
	}
	if expectedSelectedParent != header.SelectedParent {
		return nil, ErrSelectedParentMismatch
	}

	selectedParentHeader, err := s.Header(header.SelectedParent)
	if err != nil {
		return nil, err
	}

	// 4. Verify height and timestamp monotonicity.
	if header.Height != selectedParentHeader.Height+1 {
		return nil, ErrTimestampOutOfRange
	}
	if header.Timestamp.Before(selectedParentHeader.Timestamp) {
		return nil, ErrTimestampOutOfRange
	}
	tolerance := time.Duration(s.spec.TimestampDeviationToleranceSeconds) * time.Second
	if header.Timestamp.After(s.clock.Now().Add(tolerance)) {
		return nil, ErrTimestampOutOfRange
	}

	// GhostDAG classification, performed once at admission.
	data, err := ghostdag.Classify(s, s.spec.K, hash, parents)
	if err != nil {
		return nil, err
	}
	if header.BlueScore != data.BlueScore {
		return nil, ErrBlueScoreInconsistent
	}
	// BlueSetDigest commits to blue-set membership itself, not just its
	// size: two headers could agree on BlueScore while disagreeing on
	// which blocks are blue (types.BlockHeader's BlueSetDigest doc).
	if header.BlueSetDigest != ghostdag.BlueSetDigest(data) {
		return nil, ErrBlueScoreInconsistent
	}

	if err := s.checkFinality(hash); err != nil {
		return nil, err
	}

	if err := s.commitAdmission(hash, header, data, parents); err != nil {
		return nil, err
	}

	s.recomputeFinality()
	log.Debugf("admitted block %s at height %d, blue score %d", hash, header.Height, data.BlueScore)
	return data, nil
}

// checkFinality rejects a block whose admission would conflict with
// already-finalized history: it must build on top of the finalized block,
// i.e. the finalized block must be its ancestor.
func (s *Store) checkFinality(newHash primitives.Hash) error {
	s.mu.RLock()
	finalized := s.finalizedHash
	s.mu.RUnlock()

	if finalized == primitives.ZeroHash {
		return nil
	}
	isAncestor, err := s.IsAncestorOf(finalized, newHash)
	if err != nil {
		return err
	}
	if !isAncestor {
		return ErrFinalityViolation
	}
	return nil
}

// recomputeFinality advances the finalized marker to the deepest block on
// the current selected chain whose blue-score gap from the tip reaches
// FinalityDepth. Finality only ever moves
// forward: called after every successful admission.
func (s *Store) recomputeFinality() {
	s.mu.Lock()
	defer s.mu.Unlock()

	tip, err := s.selectedTipLocked()
	if err != nil {
		return
	}
	tipData := s.ghostdagData[tip]

	current := tip
	for {
		data := s.ghostdagData[current]
		if tipData.BlueScore-data.BlueScore >= uint64(s.spec.FinalityDepth) {
			if current != s.finalizedHash {
				log.Infof("finalized block %s", current)
			}
			s.finalizedHash = current
			_ = s.kv.Put(kvstore.NewKey(kvstore.CFChainMeta, []byte("finalized")), current[:])
			return
		}
		if data.SelectedParent == current {
			return
		}
		current = data.SelectedParent
	}
}

// commitAdmission performs step 5: insert block, update children indices,
// update the tip set, all atomically in one KV batch.
func (s *Store) commitAdmission(hash primitives.Hash, header *types.BlockHeader, data *ghostdag.Data, parents []primitives.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newTipSet := make(map[primitives.Hash]struct{}, len(s.tipSet)+1)
	for t := range s.tipSet {
		newTipSet[t] = struct{}{}
	}
	for _, p := range parents {
		delete(newTipSet, p)
	}
	newTipSet[hash] = struct{}{}

	tips := make([]primitives.Hash, 0, len(newTipSet))
	for t := range newTipSet {
		tips = append(tips, t)
	}

	batch := s.kv.OpenBatch()
	if err := batch.Put(kvstore.NewKey(kvstore.CFBlocks, hash[:]), header.Encode()); err != nil {
		return err
	}
	if err := batch.Put(kvstore.NewKey(kvstore.CFDAGMetadata, append([]byte("gd:"), hash[:]...)), encodeGhostdagData(data)); err != nil {
		return err
	}
	for _, p := range parents {
		children := append(append([]primitives.Hash(nil), s.children[p]...), hash)
		if err := batch.Put(kvstore.NewKey(kvstore.CFDAGMetadata, append([]byte("ch:"), p[:]...)), encodeHashList(children)); err != nil {
			return err
		}
	}
	if err := batch.Put(kvstore.NewKey(kvstore.CFTipSet, []byte("tips")), encodeHashList(tips)); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit block admission")
	}

	s.headers[hash] = header
	s.parents[hash] = parents
	s.ghostdagData[hash] = data
	s.heightIndex[header.Height] = append(s.heightIndex[header.Height], hash)
	s.tipSet = newTipSet
	for _, p := range parents {
		s.children[p] = append(s.children[p], hash)
	}
	return nil
}
