// Package executor implements the state transition that turns a selected
// parent's account state plus an ordered transaction list into a new
// account state, a receipt per transaction, and the fee/reward split
// credited to the block's producer and treasury. kaspad is a UTXO chain
// with no comparable state-transition function, so the control flow here
// is original, reusing internal/trie for storage and internal/primitives
// for signature recovery and contract-address derivation.
package executor

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/ghostkasd/ghostkasd/internal/chainspec"
	"github.com/ghostkasd/ghostkasd/internal/collaborators"
	"github.com/ghostkasd/ghostkasd/internal/kvstore"
	"github.com/ghostkasd/ghostkasd/internal/primitives"
	"github.com/ghostkasd/ghostkasd/internal/trie"
	"github.com/ghostkasd/ghostkasd/internal/types"
)

// Executor applies transactions against account state according to a
// ChainSpec's gas schedule and fee policy.
type Executor struct {
	spec chainspec.ChainSpec
	ai   collaborators.AIExecutor
}

// New builds an Executor. ai may be nil; AI-kind transactions then fail
// with AIExecutorUnavailable, consuming their full gas limit
// without aborting the block.
func New(spec chainspec.ChainSpec, ai collaborators.AIExecutor) *Executor {
	return &Executor{spec: spec, ai: ai}
}

// Result is the outcome of applying a full block's transaction list.
// IncludedTxs holds the subset of the input list that actually applied —
// it omits any transaction skipped for NonceMismatch or
// InsufficientFunds — and is index-aligned with Receipts. A caller that
// compares len(IncludedTxs) against the input list's length can tell
// whether any transaction was skipped.
type Result struct {
	StateRoot   primitives.Hash
	Receipts    []*types.Receipt
	IncludedTxs []*types.Transaction
	GasUsed     uint64
}

// ApplyBlock runs the full state transition against a trie opened at
// parentStateRoot, in transaction order, crediting the
// producer and treasury addresses once all transactions have applied. The
// caller decides whether the returned StateRoot must equal an existing
// header.state_root (validation) or becomes the header's state_root
// (production) — ApplyBlock itself is agnostic to that distinction.
func (e *Executor) ApplyBlock(ctx context.Context, store *kvstore.Store, parentStateRoot primitives.Hash, header *types.BlockHeader, txs []*types.Transaction) (*Result, error) {
	if header.GasLimit != 0 && e.totalGasLimit(txs) > header.GasLimit {
		return nil, ErrBlockGasLimitExceeded
	}

	accTrie, err := trie.NewAccountTrie(store, parentStateRoot)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open account trie at parent state root")
	}

	baseFee := new(uint256.Int).SetUint64(header.BaseFee)

	receipts := make([]*types.Receipt, 0, len(txs))
	includedTxs := make([]*types.Transaction, 0, len(txs))
	totalFees := new(uint256.Int)
	var cumulativeGas uint64

	for _, tx := range txs {
		receipt, fee, err := e.applyTransaction(ctx, accTrie, store, tx, baseFee, cumulativeGas)
		if err != nil {
			if errors.Cause(err) == ErrNonceMismatch || errors.Cause(err) == ErrInsufficientFunds {
				continue
			}
			return nil, err
		}
		cumulativeGas += receipt.GasUsed
		totalFees.Add(totalFees, fee)
		receipts = append(receipts, receipt)
		includedTxs = append(includedTxs, tx)
	}

	if err := e.creditProducerAndTreasury(accTrie, header.ProducerAddress, totalFees); err != nil {
		return nil, err
	}

	root, err := accTrie.Commit()
	if err != nil {
		return nil, errors.Wrap(err, "failed to commit account trie")
	}

	return &Result{StateRoot: root, Receipts: receipts, IncludedTxs: includedTxs, GasUsed: cumulativeGas}, nil
}

func (e *Executor) totalGasLimit(txs []*types.Transaction) uint64 {
	var total uint64
	for _, tx := range txs {
		total += tx.GasLimit
	}
	return total
}

// creditProducerAndTreasury credits producer_address with the block
// reward plus total priority fees, and credits a configured treasury
// address with a fixed fraction of fees. "Fees" is underspecified across
// the base/priority split this core's EIP-1559-style fee market
// introduces; this core resolves it by treating "fees" as the full
// effective_gas_price*gas_used collected across the block, giving the
// treasury its configured
// percentage of that total and the producer the remainder plus the fixed
// block reward (documented in the design ledger as an Open Question
// resolution rather than left ambiguous in code).
func (e *Executor) creditProducerAndTreasury(accTrie *trie.AccountTrie, producer primitives.Address, totalFees *uint256.Int) error {
	treasuryShare := new(uint256.Int).Mul(totalFees, uint256.NewInt(uint64(e.spec.TreasuryFeeSharePercent)))
	treasuryShare.Div(treasuryShare, uint256.NewInt(100))
	producerShare := new(uint256.Int).Sub(totalFees, treasuryShare)

	blockReward, overflow := uint256.FromBig(e.spec.BlockRewardWei)
	if overflow {
		return errors.New("block reward exceeds 256-bit range")
	}
	producerShare = producerShare.Add(producerShare, blockReward)

	producerAcct, err := accTrie.GetAccount(producer)
	if err != nil {
		return errors.Wrap(err, "failed to load producer account")
	}
	producerAcct.Balance = new(uint256.Int).Add(producerAcct.Balance, producerShare)
	if err := accTrie.PutAccount(producer, producerAcct); err != nil {
		return errors.Wrap(err, "failed to credit producer account")
	}

	if !treasuryShare.IsZero() && e.spec.TreasuryAddress != producer {
		treasuryAcct, err := accTrie.GetAccount(e.spec.TreasuryAddress)
		if err != nil {
			return errors.Wrap(err, "failed to load treasury account")
		}
		treasuryAcct.Balance = new(uint256.Int).Add(treasuryAcct.Balance, treasuryShare)
		if err := accTrie.PutAccount(e.spec.TreasuryAddress, treasuryAcct); err != nil {
			return errors.Wrap(err, "failed to credit treasury account")
		}
	} else if !treasuryShare.IsZero() {
		// producer and treasury coincide: reload the producer account
		// written above and credit the treasury share to it as well.
		producerAcct, err := accTrie.GetAccount(producer)
		if err != nil {
			return errors.Wrap(err, "failed to reload producer account")
		}
		producerAcct.Balance = new(uint256.Int).Add(producerAcct.Balance, treasuryShare)
		if err := accTrie.PutAccount(producer, producerAcct); err != nil {
			return errors.Wrap(err, "failed to credit treasury share to producer account")
		}
	}
	return nil
}

// applyTransaction runs a single transaction's validate-then-dispatch
// sub-steps. ErrNonceMismatch and ErrInsufficientFunds are caught by the
// caller and skip just this transaction; every other error aborts the
// whole block. A chargeable failure inside dispatch never reaches this
// error path at all — it surfaces as a failed receipt with gas consumed,
// the distinction between a rejected transaction and a contract revert.
func (e *Executor) applyTransaction(ctx context.Context, accTrie *trie.AccountTrie, store *kvstore.Store, tx *types.Transaction, baseFee *uint256.Int, cumulativeGas uint64) (*types.Receipt, *uint256.Int, error) {
	schedule := e.spec.GasSchedule

	// a. Recover sender from signature; compare to declared from_address.
	sender, err := primitives.RecoverAddress(tx.SigningHash(), tx.Signature)
	if err != nil {
		return nil, nil, errors.Wrap(ErrSignatureMismatch, err.Error())
	}
	if sender != tx.From {
		return nil, nil, ErrSignatureMismatch
	}

	// b. Load sender account. Require nonce match.
	senderAcct, err := accTrie.GetAccount(tx.From)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load sender account")
	}
	if senderAcct.Nonce != tx.Nonce {
		return nil, nil, ErrNonceMismatch
	}

	if (tx.Kind == types.KindTransfer || tx.Kind == types.KindContractCall) && tx.To == nil {
		return nil, nil, ErrMissingRecipient
	}

	// c. Compute intrinsic gas; require balance covers gas + value.
	intrinsic := tx.IntrinsicGas(schedule.IntrinsicGasBase, schedule.IntrinsicGasPerPayloadByte, schedule.ContractCreateGas, schedule.AIKindBaseGas)
	effectiveGasPrice := tx.EffectiveGasPrice(baseFee)

	gasCost := new(uint256.Int).Mul(effectiveGasPrice, new(uint256.Int).SetUint64(tx.GasLimit))
	upfront := new(uint256.Int).Add(gasCost, tx.Value)
	if senderAcct.Balance.Cmp(upfront) < 0 {
		return nil, nil, ErrInsufficientFunds
	}

	// d. Deduct upfront gas cost, increment nonce. Persist immediately so
	// a self-call (sender == to) observes the post-deduction balance.
	senderAcct.Balance = new(uint256.Int).Sub(senderAcct.Balance, gasCost)
	senderAcct.Nonce++
	if err := accTrie.PutAccount(tx.From, senderAcct); err != nil {
		return nil, nil, errors.Wrap(err, "failed to deduct upfront gas cost")
	}

	gasBudget := tx.GasLimit - intrinsic
	if intrinsic > tx.GasLimit {
		gasBudget = 0
	}

	output, logs, dispatchGasUsed, status, err := e.dispatch(ctx, accTrie, store, tx, sender, gasBudget)
	if err != nil {
		return nil, nil, err
	}

	gasUsed := intrinsic + dispatchGasUsed
	if gasUsed > tx.GasLimit {
		gasUsed = tx.GasLimit
	}

	// f. Refund unused gas at effective_gas_price.
	unused := tx.GasLimit - gasUsed
	if unused > 0 {
		refund := new(uint256.Int).Mul(effectiveGasPrice, new(uint256.Int).SetUint64(unused))
		refundAcct, err := accTrie.GetAccount(tx.From)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to reload sender account for refund")
		}
		refundAcct.Balance = new(uint256.Int).Add(refundAcct.Balance, refund)
		if err := accTrie.PutAccount(tx.From, refundAcct); err != nil {
			return nil, nil, errors.Wrap(err, "failed to refund unused gas")
		}
	}

	fee := new(uint256.Int).Mul(effectiveGasPrice, new(uint256.Int).SetUint64(gasUsed))

	// g. Emit a receipt.
	receipt := &types.Receipt{
		TxHash:            tx.Hash(),
		Status:            status,
		GasUsed:           gasUsed,
		CumulativeGasUsed: cumulativeGas + gasUsed,
		Logs:              logs,
		Output:            output,
	}
	return receipt, fee, nil
}

// dispatch runs step 3.e's per-kind behavior. A non-nil error here is a
// storage failure;
// anything recoverable at the single-transaction level (a revert, an
// unavailable AI executor, an out-of-gas VM run) is instead folded into a
// ReceiptStatusFailed return with no error.
func (e *Executor) dispatch(ctx context.Context, accTrie *trie.AccountTrie, store *kvstore.Store, tx *types.Transaction, sender primitives.Address, gasBudget uint64) ([]byte, []types.Log, uint64, types.ReceiptStatus, error) {
	switch tx.Kind {
	case types.KindTransfer:
		return e.dispatchTransfer(accTrie, tx, sender)

	case types.KindContractCreate:
		return e.dispatchContractCreate(accTrie, store, tx, sender, gasBudget)

	case types.KindContractCall:
		return e.dispatchContractCall(accTrie, store, tx, sender, gasBudget)

	default: // AI kinds
		return e.dispatchAIKind(ctx, tx, gasBudget)
	}
}

func (e *Executor) dispatchTransfer(accTrie *trie.AccountTrie, tx *types.Transaction, sender primitives.Address) ([]byte, []types.Log, uint64, types.ReceiptStatus, error) {
	if err := e.transferValue(accTrie, sender, *tx.To, tx.Value); err != nil {
		return nil, nil, 0, types.ReceiptStatusFailed, errors.Wrap(err, "failed to apply transfer")
	}
	return nil, nil, 0, types.ReceiptStatusSuccess, nil
}

// transferValue moves value from one account to another, reloading both
// to handle the sender-equals-recipient case correctly.
func (e *Executor) transferValue(accTrie *trie.AccountTrie, from, to primitives.Address, value *uint256.Int) error {
	if value.IsZero() {
		return nil
	}
	fromAcct, err := accTrie.GetAccount(from)
	if err != nil {
		return err
	}
	if fromAcct.Balance.Cmp(value) < 0 {
		return errors.New("insufficient balance for value transfer")
	}
	fromAcct.Balance = new(uint256.Int).Sub(fromAcct.Balance, value)
	if err := accTrie.PutAccount(from, fromAcct); err != nil {
		return err
	}

	toAcct, err := accTrie.GetAccount(to)
	if err != nil {
		return err
	}
	toAcct.Balance = new(uint256.Int).Add(toAcct.Balance, value)
	return accTrie.PutAccount(to, toAcct)
}

func (e *Executor) dispatchContractCreate(accTrie *trie.AccountTrie, store *kvstore.Store, tx *types.Transaction, sender primitives.Address, gasBudget uint64) ([]byte, []types.Log, uint64, types.ReceiptStatus, error) {
	contractAddr := primitives.ContractAddress(sender, tx.Nonce)

	if err := e.transferValue(accTrie, sender, contractAddr, tx.Value); err != nil {
		return nil, nil, 0, types.ReceiptStatusFailed, errors.Wrap(err, "failed to fund new contract")
	}

	if len(tx.Payload) == 0 {
		// No init code: an account holding only a value transfer.
		return nil, nil, 0, types.ReceiptStatusSuccess, nil
	}

	storageTrie, err := trie.New(store, primitives.ZeroHash)
	if err != nil {
		return nil, nil, 0, types.ReceiptStatusFailed, errors.Wrap(err, "failed to open new contract's storage trie")
	}

	machine := &vm{
		code:     tx.Payload,
		input:    nil,
		value:    tx.Value,
		caller:   sender,
		address:  contractAddr,
		storage:  storageTrie,
		gas:      &gasMeter{remaining: gasBudget},
		schedule: e.spec.GasSchedule,
	}
	output, runErr := machine.run()
	gasUsed := gasBudget - machine.gas.remaining

	if runErr != nil {
		return nil, machine.logs, gasUsed, types.ReceiptStatusFailed, nil
	}

	storageRoot, err := storageTrie.Commit()
	if err != nil {
		return nil, nil, 0, types.ReceiptStatusFailed, errors.Wrap(err, "failed to commit new contract's storage")
	}

	codeHash := primitives.HashData(output)
	if err := accTrie.Put(codeHash[:], output); err != nil {
		return nil, nil, 0, types.ReceiptStatusFailed, errors.Wrap(err, "failed to persist contract code")
	}

	contractAcct, err := accTrie.GetAccount(contractAddr)
	if err != nil {
		return nil, nil, 0, types.ReceiptStatusFailed, errors.Wrap(err, "failed to load new contract account")
	}
	contractAcct.CodeHash = codeHash
	contractAcct.StorageRoot = storageRoot
	if err := accTrie.PutAccount(contractAddr, contractAcct); err != nil {
		return nil, nil, 0, types.ReceiptStatusFailed, errors.Wrap(err, "failed to persist new contract account")
	}

	return output, machine.logs, gasUsed, types.ReceiptStatusSuccess, nil
}

func (e *Executor) dispatchContractCall(accTrie *trie.AccountTrie, store *kvstore.Store, tx *types.Transaction, sender primitives.Address, gasBudget uint64) ([]byte, []types.Log, uint64, types.ReceiptStatus, error) {
	to := *tx.To

	if err := e.transferValue(accTrie, sender, to, tx.Value); err != nil {
		return nil, nil, 0, types.ReceiptStatusFailed, errors.Wrap(err, "failed to apply call value")
	}

	toAcct, err := accTrie.GetAccount(to)
	if err != nil {
		return nil, nil, 0, types.ReceiptStatusFailed, errors.Wrap(err, "failed to load called account")
	}
	if toAcct.CodeHash == types.EmptyCodeHash {
		// Plain account: a call with no code behaves like a transfer.
		return nil, nil, 0, types.ReceiptStatusSuccess, nil
	}

	code, err := accTrie.Get(toAcct.CodeHash[:])
	if err != nil {
		return nil, nil, 0, types.ReceiptStatusFailed, errors.Wrap(err, "failed to load contract code")
	}

	storageTrie, err := trie.New(store, toAcct.StorageRoot)
	if err != nil {
		return nil, nil, 0, types.ReceiptStatusFailed, errors.Wrap(err, "failed to open contract storage trie")
	}

	machine := &vm{
		code:     code,
		input:    tx.Payload,
		value:    tx.Value,
		caller:   sender,
		address:  to,
		storage:  storageTrie,
		gas:      &gasMeter{remaining: gasBudget},
		schedule: e.spec.GasSchedule,
	}
	output, runErr := machine.run()
	gasUsed := gasBudget - machine.gas.remaining

	storageRoot, commitErr := storageTrie.Commit()
	if commitErr != nil {
		return nil, nil, 0, types.ReceiptStatusFailed, errors.Wrap(commitErr, "failed to commit contract storage")
	}
	toAcct.StorageRoot = storageRoot
	if err := accTrie.PutAccount(to, toAcct); err != nil {
		return nil, nil, 0, types.ReceiptStatusFailed, errors.Wrap(err, "failed to persist contract account after call")
	}

	if runErr != nil {
		return output, machine.logs, gasUsed, types.ReceiptStatusFailed, nil
	}
	return output, machine.logs, gasUsed, types.ReceiptStatusSuccess, nil
}

func (e *Executor) dispatchAIKind(ctx context.Context, tx *types.Transaction, gasBudget uint64) ([]byte, []types.Log, uint64, types.ReceiptStatus, error) {
	if e.ai == nil {
		// AIExecutorUnavailable fails the AI-kind transaction and consumes
		// its gas, without aborting the block.
		return nil, nil, gasBudget, types.ReceiptStatusFailed, nil
	}

	result, err := e.ai.Execute(ctx, tx.Kind, tx.Payload, gasBudget)
	if err != nil {
		return nil, nil, gasBudget, types.ReceiptStatusFailed, nil
	}

	gasUsed := result.GasUsed
	if gasUsed > gasBudget {
		gasUsed = gasBudget
	}
	return result.Output, result.Logs, gasUsed, result.Status, nil
}
