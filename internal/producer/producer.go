// Package producer assembles and admits new blocks: pick a
// tip set and merge parents, pull a transaction bundle from the mempool,
// run the state transition, finalize the header, sign it, and admit it
// locally. It is grounded on mining.BlkTmplGenerator's shape — a struct
// holding the pool/store/time-source collaborators a template-builder
// needs, with a single entry point that returns a ready-to-broadcast block
// — generalized from a UTXO coinbase-and-merkle-root assembly
// to this chain's account-model state transition and GhostDAG parent
// selection.
package producer

import (
	"bytes"
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/ghostkasd/ghostkasd/internal/chainspec"
	"github.com/ghostkasd/ghostkasd/internal/collaborators"
	"github.com/ghostkasd/ghostkasd/internal/dagstore"
	"github.com/ghostkasd/ghostkasd/internal/executor"
	"github.com/ghostkasd/ghostkasd/internal/ghostdag"
	"github.com/ghostkasd/ghostkasd/internal/kvstore"
	"github.com/ghostkasd/ghostkasd/internal/mempool"
	"github.com/ghostkasd/ghostkasd/internal/primitives"
	"github.com/ghostkasd/ghostkasd/internal/trie"
	"github.com/ghostkasd/ghostkasd/internal/types"
)

// Signer produces the producer-key signature over a block header's signing
// hash. cmd/ghostkasd supplies the concrete secp256k1-backed
// implementation; the core never holds a private key itself.
type Signer interface {
	Address() primitives.Address
	Sign(hash primitives.Hash) (primitives.Signature, error)
}

// Producer builds candidate blocks on top of the current tip set.
type Producer struct {
	spec   chainspec.ChainSpec
	kv     *kvstore.Store
	store  *dagstore.Store
	pool   *mempool.Pool
	exec   *executor.Executor
	clock  collaborators.Clock
	signer Signer
}

// New builds a Producer. exec may be built with a nil AIExecutor if the
// node does not run AI-kind transactions locally.
func New(spec chainspec.ChainSpec, kv *kvstore.Store, store *dagstore.Store, pool *mempool.Pool, exec *executor.Executor, clock collaborators.Clock, signer Signer) *Producer {
	return &Producer{spec: spec, kv: kv, store: store, pool: pool, exec: exec, clock: clock, signer: signer}
}

// Produce assembles, executes, signs and locally admits one new block on
// top of the current selected tip, returning the admitted header and the
// transactions it included. It is the producer's single entry point,
// called once per ChainSpec.BlockTimeInterval tick by the caller's
// scheduling loop — this package has no internal timer.
func (p *Producer) Produce(ctx context.Context) (*types.BlockHeader, []*types.Transaction, error) {
	selectedParent, err := p.store.SelectedTip()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to select tip")
	}
	parentHeader, err := p.store.Header(selectedParent)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load selected parent header")
	}

	mergeParents, err := p.selectMergeParents(selectedParent)
	if err != nil {
		return nil, nil, err
	}
	parents := append([]primitives.Hash{selectedParent}, mergeParents...)

	// GhostDAG classification runs here, before the header is finalized,
	// so BlueScore/BlueSetDigest are known prior to signing: AdmitBlock
	// independently recomputes classification on admission and requires
	// an exact match (internal/dagstore's AdmitBlock, internal/ghostdag's
	// BlueSetDigest).
	data, err := ghostdag.Classify(p.store, p.spec.K, primitives.Hash{}, parents)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to classify candidate block")
	}

	txs := p.pool.Bundle(p.spec.BlockGasLimit)

	header := &types.BlockHeader{
		SelectedParent:  selectedParent,
		MergeParents:    mergeParents,
		Timestamp:       p.clock.Now(),
		Height:          parentHeader.Height + 1,
		BlueScore:       data.BlueScore,
		BlueSetDigest:   ghostdag.BlueSetDigest(data),
		ProducerAddress: p.signer.Address(),
		GasLimit:        p.spec.BlockGasLimit,
		// BaseFee is inherited unchanged from the parent: there is no
		// dynamic fee-adjustment algorithm, so every block carries the
		// base fee its genesis header was seeded with.
		BaseFee: parentHeader.BaseFee,
	}

	result, err := p.exec.ApplyBlock(ctx, p.kv, parentHeader.StateRoot, header, txs)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to execute candidate block")
	}
	if len(result.IncludedTxs) != len(txs) {
		log.Infof("dropped %d of %d bundled transactions (nonce/balance no longer valid)",
			len(txs)-len(result.IncludedTxs), len(txs))
	}
	included := result.IncludedTxs

	header.StateRoot = result.StateRoot
	header.TransactionsRoot = types.BuildTransactionsRoot(included)
	header.ReceiptsRoot = types.BuildReceiptsRoot(result.Receipts)
	header.GasUsed = result.GasUsed

	signature, err := p.signer.Sign(header.SigningHash())
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to sign candidate block")
	}
	header.Signature = signature

	if _, err := p.store.AdmitBlock(header); err != nil {
		return nil, nil, errors.Wrap(err, "failed to admit own block")
	}

	if err := PersistBody(p.kv, header.Hash(), included, result.Receipts); err != nil {
		return nil, nil, errors.Wrap(err, "failed to persist block body")
	}

	p.pool.RemoveIncluded(included)

	log.Infof("produced block %s at height %d with %d transactions (%d gas used)",
		header.Hash(), header.Height, len(included), header.GasUsed)
	return header, included, nil
}

// selectMergeParents picks up to ChainSpec.MergeSetSizeLimit additional
// parents from the current tip set, preferring the highest blue score
// among tips other than the selected parent.
func (p *Producer) selectMergeParents(selectedParent primitives.Hash) ([]primitives.Hash, error) {
	tips := p.store.TipSet()

	type scoredTip struct {
		hash      primitives.Hash
		blueScore uint64
	}
	var candidates []scoredTip
	for _, tip := range tips {
		if tip == selectedParent {
			continue
		}
		data, err := p.store.GhostdagDataOf(tip)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, scoredTip{hash: tip, blueScore: data.BlueScore})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].blueScore != candidates[j].blueScore {
			return candidates[i].blueScore > candidates[j].blueScore
		}
		return candidates[i].hash.Less(candidates[j].hash)
	})

	limit := p.spec.MergeSetSizeLimit
	if limit > len(candidates) {
		limit = len(candidates)
	}

	merge := make([]primitives.Hash, 0, limit)
	for _, c := range candidates[:limit] {
		merge = append(merge, c.hash)
	}
	return merge, nil
}

// PersistBody stores a block's transactions and receipts so they can
// later be served back out, mirroring the column families internal/kvstore
// reserves for them but which block validation itself never needs to
// touch. Shared by Produce (for locally produced blocks) and the ingress
// handler (for blocks received over the network).
func PersistBody(kv *kvstore.Store, blockHash primitives.Hash, txs []*types.Transaction, receipts []*types.Receipt) error {
	batch := kv.OpenBatch()
	for i, tx := range txs {
		key := append(append([]byte{}, blockHash[:]...), encodeIndex(i)...)
		var buf bytes.Buffer
		if err := tx.Encode(&buf); err != nil {
			return err
		}
		if err := batch.Put(kvstore.NewKey(kvstore.CFTransactions, key), buf.Bytes()); err != nil {
			return err
		}
	}
	for i, r := range receipts {
		key := append(append([]byte{}, blockHash[:]...), encodeIndex(i)...)
		var buf bytes.Buffer
		if err := r.Encode(&buf); err != nil {
			return err
		}
		if err := batch.Put(kvstore.NewKey(kvstore.CFReceipts, key), buf.Bytes()); err != nil {
			return err
		}
	}
	return batch.Commit()
}

func encodeIndex(i int) []byte {
	return []byte{byte(i >> 24), byte(i >> 16), byte(i >> 8), byte(i)}
}

// accountSourceAdapter satisfies mempool.AccountSource over an open account
// trie, the thin adapter mempool.AccountSource's doc describes.
type accountSourceAdapter struct {
	trie *trie.AccountTrie
}

func (a accountSourceAdapter) NonceOf(addr primitives.Address) (uint64, error) {
	acct, err := a.trie.GetAccount(addr)
	if err != nil {
		return 0, err
	}
	return acct.Nonce, nil
}

// NewAccountSource builds the mempool.AccountSource a Pool needs, backed by
// the account trie at the given state root (ordinarily the current
// selected tip's state root).
func NewAccountSource(kv *kvstore.Store, stateRoot primitives.Hash) (mempool.AccountSource, error) {
	accTrie, err := trie.NewAccountTrie(kv, stateRoot)
	if err != nil {
		return nil, err
	}
	return accountSourceAdapter{trie: accTrie}, nil
}
