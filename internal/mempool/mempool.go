// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mempool is the pending-transaction pool: a priority index
// ordered by effective gas price with FIFO tiebreak, a per-sender nonce
// index, and an admission pipeline (signature, gas-price floor,
// staleness, replacement-by-fee, capacity eviction). It is grounded
// structurally on domain/mempool/mempool.go's shape — an RWMutex-guarded
// pool keyed by transaction identity, a Policy-like set of configured
// limits, and a periodic TTL expiry scan gated by a "next scan" timestamp
// rather than a per-entry timer — reworked from a UTXO orphan/outpoint
// index (which has no equivalent here: this chain has no orphans, since
// every transaction names its sender and nonce directly rather than
// referencing a prior output) into an account-model sender/nonce index.
// The priority queue selects transactions by a live ordered index rather
// than a fee-per-mass slice sort; `github.com/google/btree` is adopted
// from the rest of the retrieval pack's B-tree-backed ordered-index
// idiom for a pool meant to support concurrent admission and eviction
// without re-sorting on every call.
package mempool

import (
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/holiman/uint256"

	"github.com/ghostkasd/ghostkasd/internal/chainspec"
	"github.com/ghostkasd/ghostkasd/internal/collaborators"
	"github.com/ghostkasd/ghostkasd/internal/primitives"
	"github.com/ghostkasd/ghostkasd/internal/types"
)

// btreeDegree is an arbitrary, unremarkable B-tree branching factor; this
// pool's size is in the tens of thousands of entries at most, far below
// where degree choice would matter.
const btreeDegree = 32

// AccountSource answers the on-chain nonce queries the admission pipeline
// and pending-nonce query need. internal/trie.AccountTrie satisfies this
// trivially via a thin adapter at the call site.
type AccountSource interface {
	NonceOf(addr primitives.Address) (uint64, error)
}

type entry struct {
	tx       *types.Transaction
	addedAt  time.Time
	effPrice *uint256.Int
	item     *priorityItem
}

// priorityItem is the btree.Item sorted by effective gas price descending,
// then insertion sequence ascending (FIFO tiebreak), so that Ascend order
// walks the pool from highest to lowest priority.
type priorityItem struct {
	price *uint256.Int
	seq   uint64
	addr  primitives.Address
	nonce uint64
}

func (p *priorityItem) Less(than btree.Item) bool {
	other := than.(*priorityItem)
	if cmp := p.price.Cmp(other.price); cmp != 0 {
		return cmp > 0
	}
	return p.seq < other.seq
}

// Pool is the pending-transaction pool.
type Pool struct {
	spec     chainspec.ChainSpec
	clock    collaborators.Clock
	accounts AccountSource

	mu sync.RWMutex

	bySenderNonce map[primitives.Address]map[uint64]*entry
	byHash        map[primitives.Hash]*entry
	priority      *btree.BTree
	nextSeq       uint64

	nextExpireScan time.Time
}

// New builds an empty Pool.
func New(spec chainspec.ChainSpec, clock collaborators.Clock, accounts AccountSource) *Pool {
	return &Pool{
		spec:          spec,
		clock:         clock,
		accounts:      accounts,
		bySenderNonce: make(map[primitives.Address]map[uint64]*entry),
		byHash:        make(map[primitives.Hash]*entry),
		priority:      btree.New(btreeDegree),
	}
}

// Admit runs the six-step admission pipeline against tx,
// computing its effective gas price against baseFee (the caller's current
// best estimate of the next block's base fee).
func (p *Pool) Admit(tx *types.Transaction, baseFee *uint256.Int) error {
	// 1. Signature verification.
	sender, err := primitives.RecoverAddress(tx.SigningHash(), tx.Signature)
	if err != nil {
		return ErrSignatureInvalid
	}
	if sender != tx.From {
		return ErrSignatureInvalid
	}

	// 2. Minimum gas price floor.
	effPrice := tx.EffectiveGasPrice(baseFee)
	floor := new(uint256.Int).SetUint64(p.spec.MempoolMinGasPriceWei)
	if effPrice.Cmp(floor) < 0 {
		return ErrGasPriceTooLow
	}

	// 3. Staleness against the on-chain nonce.
	onChainNonce, err := p.accounts.NonceOf(tx.From)
	if err != nil {
		return err
	}
	if tx.Nonce < onChainNonce {
		return ErrStaleNonce
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// 4. Replacement-by-fee at an already-occupied (sender, nonce).
	senderEntries := p.bySenderNonce[tx.From]
	var replacing *entry
	if senderEntries != nil {
		if existing, ok := senderEntries[tx.Nonce]; ok {
			margin := new(uint256.Int).SetUint64(uint64(100 + p.spec.ReplacementMarginPercent))
			required := new(uint256.Int).Mul(existing.effPrice, margin)
			required.Div(required, new(uint256.Int).SetUint64(100))
			if effPrice.Cmp(required) < 0 {
				return ErrReplacementUnderpriced
			}
			replacing = existing
		}
	}

	// 5. Capacity enforcement.
	if replacing == nil {
		senderCount := len(senderEntries)
		if senderCount >= p.spec.PerSenderMempoolCap {
			return ErrPerSenderCapExceeded
		}
		if len(p.byHash) >= p.spec.GlobalMempoolCap {
			if !p.evictLowestPriorityLocked(tx.From) {
				return ErrPoolFull
			}
		}
	}

	if replacing != nil {
		log.Debugf("replacing tx %s at (sender %s, nonce %d) with %s", replacing.tx.Hash(), tx.From, tx.Nonce, tx.Hash())
		p.removeLocked(replacing.tx.From, replacing.tx.Nonce)
	}

	// 6. Insert.
	p.nextSeq++
	item := &priorityItem{price: effPrice, seq: p.nextSeq, addr: tx.From, nonce: tx.Nonce}
	e := &entry{tx: tx, addedAt: p.now(), effPrice: effPrice, item: item}

	if p.bySenderNonce[tx.From] == nil {
		p.bySenderNonce[tx.From] = make(map[uint64]*entry)
	}
	p.bySenderNonce[tx.From][tx.Nonce] = e
	p.byHash[tx.Hash()] = e
	p.priority.ReplaceOrInsert(item)

	return nil
}

func (p *Pool) now() time.Time {
	if p.clock != nil {
		return p.clock.Now()
	}
	return time.Now()
}

// evictLowestPriorityLocked evicts the single lowest-priority entry not
// belonging to protect, returning whether an eviction happened. Never
// evicting the incoming sender's own transactions avoids opening a nonce
// gap in the sender's own queued sequence.
func (p *Pool) evictLowestPriorityLocked(protect primitives.Address) bool {
	var victim *priorityItem
	p.priority.Descend(func(i btree.Item) bool {
		candidate := i.(*priorityItem)
		if candidate.addr == protect {
			return true
		}
		victim = candidate
		return false
	})
	if victim == nil {
		return false
	}
	log.Debugf("evicting low-priority tx at (sender %s, nonce %d) to admit sender %s", victim.addr, victim.nonce, protect)
	p.removeLocked(victim.addr, victim.nonce)
	return true
}

// removeLocked deletes the (addr, nonce) entry from every index. Caller
// must hold p.mu.
func (p *Pool) removeLocked(addr primitives.Address, nonce uint64) {
	senderEntries := p.bySenderNonce[addr]
	if senderEntries == nil {
		return
	}
	e, ok := senderEntries[nonce]
	if !ok {
		return
	}
	delete(senderEntries, nonce)
	if len(senderEntries) == 0 {
		delete(p.bySenderNonce, addr)
	}
	delete(p.byHash, e.tx.Hash())
	p.priority.Delete(e.item)
}

// PendingNonce answers the pending-nonce law:
// max(on_chain_nonce(A), max{T.nonce : T∈mempool, T.sender=A}) + 1.
func (p *Pool) PendingNonce(addr primitives.Address) (uint64, error) {
	onChainNonce, err := p.accounts.NonceOf(addr)
	if err != nil {
		return 0, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	max := onChainNonce
	for nonce := range p.bySenderNonce[addr] {
		if nonce > max {
			max = nonce
		}
	}
	return max + 1, nil
}

// Bundle selects transactions for a new block: a greedy merge across
// senders that always takes the highest-priority transaction among those
// currently eligible (each sender contributes at most one candidate at a
// time — its lowest not-yet-included nonce — so inclusion order is always
// nonce-monotonic with no gaps per sender). A transaction that would push
// the total past gasLimit is skipped, and with it the rest of its sender's
// queue; selection goes on with the other senders.
func (p *Pool) Bundle(gasLimit uint64) []*types.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	eligible := btree.New(btreeDegree)
	for addr := range p.bySenderNonce {
		onChainNonce, err := p.accounts.NonceOf(addr)
		if err != nil {
			continue
		}
		if e, ok := p.bySenderNonce[addr][onChainNonce]; ok {
			eligible.ReplaceOrInsert(e.item)
		}
	}

	var bundle []*types.Transaction
	var used uint64
	for eligible.Len() > 0 {
		top := eligible.Min().(*priorityItem)
		eligible.Delete(top)

		e := p.bySenderNonce[top.addr][top.nonce]
		if e == nil {
			continue
		}
		if used+e.tx.GasLimit > gasLimit {
			continue
		}

		bundle = append(bundle, e.tx)
		used += e.tx.GasLimit

		if next, ok := p.bySenderNonce[top.addr][top.nonce+1]; ok {
			eligible.ReplaceOrInsert(next.item)
		}
	}
	return bundle
}

// RemoveIncluded evicts every transaction in txs from the pool, called
// once a block containing them has been admitted.
func (p *Pool) RemoveIncluded(txs []*types.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tx := range txs {
		p.removeLocked(tx.From, tx.Nonce)
	}
}

// ExpireStale evicts every entry older than ChainSpec.MempoolTTL, using a
// next-scan-gated expiry pattern rather than a per-entry timer.
func (p *Pool) ExpireStale() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if now.Before(p.nextExpireScan) {
		return
	}
	p.nextExpireScan = now.Add(p.spec.MempoolTTL / 4)

	var expired []*entry
	for _, senderEntries := range p.bySenderNonce {
		for _, e := range senderEntries {
			if now.Sub(e.addedAt) >= p.spec.MempoolTTL {
				expired = append(expired, e)
			}
		}
	}
	for _, e := range expired {
		p.removeLocked(e.tx.From, e.tx.Nonce)
	}
}

// Reinject re-admits transactions displaced by a reorg. Reinjection is
// explicit rather than implicit: the component that detects a reorg (the DAG store
// or the producer wired around it) is responsible for calling Reinject
// with the displaced transactions; the pool itself never reaches into DAG
// state to discover them on its own. Transactions that fail admission
// (already stale, already present at a higher-priced replacement) are
// silently dropped rather than surfaced as errors, since at this point
// there is no caller left to report failures back to.
func (p *Pool) Reinject(txs []*types.Transaction, baseFee *uint256.Int) {
	for _, tx := range txs {
		_ = p.Admit(tx, baseFee)
	}
}

// Has reports whether a transaction occupies the given (sender, nonce)
// slot.
func (p *Pool) Has(addr primitives.Address, nonce uint64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	senderEntries := p.bySenderNonce[addr]
	if senderEntries == nil {
		return false
	}
	_, ok := senderEntries[nonce]
	return ok
}

// Len returns the total number of pending transactions.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byHash)
}
