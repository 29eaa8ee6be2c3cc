// Package ingress implements the reverse path of internal/producer: where
// Produce assembles, executes and signs a candidate block, Handler decodes
// a block or transaction that arrived from an external
// collaborators.Network, re-executes it against already-committed state,
// and only admits it once the result matches what the wire data claims.
// Grounded on blockdag/process.go's ProcessBlock, a validate-then-commit
// entrypoint for inbound blocks; "validate" here re-runs the state
// transition instead of checking UTXO spends, since this core has no UTXO
// set to check against.
package ingress

import (
	"bytes"
	"context"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/ghostkasd/ghostkasd/internal/chainspec"
	"github.com/ghostkasd/ghostkasd/internal/collaborators"
	"github.com/ghostkasd/ghostkasd/internal/dagstore"
	"github.com/ghostkasd/ghostkasd/internal/executor"
	"github.com/ghostkasd/ghostkasd/internal/kvstore"
	"github.com/ghostkasd/ghostkasd/internal/mempool"
	"github.com/ghostkasd/ghostkasd/internal/producer"
	"github.com/ghostkasd/ghostkasd/internal/types"
)

// Handler admits blocks and transactions received from an external
// collaborators.Network. A node with no producer.Signer configured (a
// non-validator, ingress-only node) runs nothing but a Handler.
type Handler struct {
	spec  chainspec.ChainSpec
	kv    *kvstore.Store
	store *dagstore.Store
	pool  *mempool.Pool
	exec  *executor.Executor
}

// NewHandler builds a Handler over the same collaborators a Producer uses,
// so a node can run either or both against one store/pool/executor.
func NewHandler(spec chainspec.ChainSpec, kv *kvstore.Store, store *dagstore.Store, pool *mempool.Pool, exec *executor.Executor) *Handler {
	return &Handler{spec: spec, kv: kv, store: store, pool: pool, exec: exec}
}

// AdmitBlock decodes a wire-format block, re-executes its transactions
// against its declared selected parent's committed state, and verifies the
// resulting state/transactions/receipts roots and gas_used against the
// header's declared values before calling dagstore.Store.AdmitBlock and
// persisting the block body. A block that still includes a transaction
// re-execution would have skipped is rejected outright: a conformant
// producer never includes one (internal/executor's Result.IncludedTxs).
func (h *Handler) AdmitBlock(ctx context.Context, raw []byte) error {
	block, err := types.DecodeBlock(bytes.NewReader(raw))
	if err != nil {
		return errors.Wrap(err, "failed to decode incoming block")
	}
	header := &block.Header
	hash := header.Hash()

	if h.store.HasBlock(hash) {
		return nil
	}

	parentHeader, err := h.store.Header(header.SelectedParent)
	if err != nil {
		return errors.Wrap(err, "selected parent not known")
	}

	result, err := h.exec.ApplyBlock(ctx, h.kv, parentHeader.StateRoot, header, block.Transactions)
	if err != nil {
		return errors.Wrap(err, "failed to re-execute incoming block")
	}
	if len(result.IncludedTxs) != len(block.Transactions) {
		return errors.Wrap(executor.ErrUnskippedTransaction, "incoming block")
	}
	if result.StateRoot != header.StateRoot {
		return errors.Wrap(executor.ErrStateRootMismatch, hash.String())
	}
	if types.BuildTransactionsRoot(block.Transactions) != header.TransactionsRoot {
		return errors.Wrap(executor.ErrTransactionsRootMismatch, hash.String())
	}
	if types.BuildReceiptsRoot(result.Receipts) != header.ReceiptsRoot {
		return errors.Wrap(executor.ErrReceiptsRootMismatch, hash.String())
	}
	if result.GasUsed != header.GasUsed {
		return errors.Wrap(executor.ErrGasUsedMismatch, hash.String())
	}

	if _, err := h.store.AdmitBlock(header); err != nil {
		return errors.Wrap(err, "failed to admit incoming block")
	}
	if err := producer.PersistBody(h.kv, hash, block.Transactions, result.Receipts); err != nil {
		return errors.Wrap(err, "failed to persist incoming block body")
	}

	h.pool.RemoveIncluded(block.Transactions)
	log.Infof("admitted incoming block %s at height %d with %d transactions", hash, header.Height, len(block.Transactions))
	return nil
}

// AdmitTransaction decodes a wire-format transaction and submits it to the
// mempool, priced against the current selected tip's base fee.
func (h *Handler) AdmitTransaction(raw []byte) error {
	tx, err := types.DecodeTransaction(bytes.NewReader(raw))
	if err != nil {
		return errors.Wrap(err, "failed to decode incoming transaction")
	}

	tip, err := h.store.SelectedTip()
	if err != nil {
		return errors.Wrap(err, "failed to select tip")
	}
	tipHeader, err := h.store.Header(tip)
	if err != nil {
		return errors.Wrap(err, "failed to load selected tip header")
	}

	baseFee := new(uint256.Int).SetUint64(tipHeader.BaseFee)
	return h.pool.Admit(tx, baseFee)
}

// Run consumes net's inbound channels until ctx is done, dispatching each
// message to AdmitBlock or AdmitTransaction and logging (rather than
// propagating) rejections, so one bad peer message never stops the loop.
// This is the whole of an ingress-only node's workload: the counterpart to
// internal/producer.Produce's production loop.
func (h *Handler) Run(ctx context.Context, net collaborators.Network) {
	blocks := net.IncomingBlocks()
	txs := net.IncomingTransactions()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-blocks:
			if !ok {
				return
			}
			if err := h.AdmitBlock(ctx, raw); err != nil {
				log.Warnf("rejected incoming block: %s", err)
			}
		case raw, ok := <-txs:
			if !ok {
				return
			}
			if err := h.AdmitTransaction(raw); err != nil {
				log.Warnf("rejected incoming transaction: %s", err)
			}
		}
	}
}
