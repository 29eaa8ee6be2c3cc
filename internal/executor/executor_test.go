package executor_test

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/holiman/uint256"

	"github.com/ghostkasd/ghostkasd/internal/chainspec"
	"github.com/ghostkasd/ghostkasd/internal/executor"
	"github.com/ghostkasd/ghostkasd/internal/kvstore"
	"github.com/ghostkasd/ghostkasd/internal/primitives"
	"github.com/ghostkasd/ghostkasd/internal/trie"
	"github.com/ghostkasd/ghostkasd/internal/types"
)

// signer wraps a test secp256k1 key pair so transactions can be built with
// a valid signature/from_address pair, exercising the executor's signature
// recovery step the way it runs in production.
type signer struct {
	priv *btcec.PrivateKey
	addr primitives.Address
}

func newSigner(t *testing.T) signer {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("btcec.NewPrivateKey: %v", err)
	}
	uncompressed := priv.PubKey().SerializeUncompressed()
	addr, err := primitives.AddressFromPublicKey(uncompressed[1:])
	if err != nil {
		t.Fatalf("AddressFromPublicKey: %v", err)
	}
	return signer{priv: priv, addr: addr}
}

func (s signer) sign(t *testing.T, tx *types.Transaction) {
	t.Helper()
	tx.From = s.addr
	hash := tx.SigningHash()
	// compressed=false keeps the recovery header in the 27-30 range,
	// matching the +27 base primitives.RecoverAddress reconstructs.
	compact := ecdsa.SignCompact(s.priv, hash[:], false)
	var sig primitives.Signature
	copy(sig[:64], compact[1:])
	sig[64] = compact[0] - 27
	tx.Signature = sig
}

func newTestExecutor(t *testing.T) (*executor.Executor, *kvstore.Store, chainspec.ChainSpec) {
	t.Helper()
	store, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	spec := chainspec.Default()
	spec.TreasuryAddress = primitives.Address{0xAA}
	return executor.New(spec, nil), store, spec
}

func gwei(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000))
}

// TestTransferUpdatesBalancesAndNonce exercises scenario S1: a plain
// transfer whose exact before/after balances are a numeric oracle.
func TestTransferUpdatesBalancesAndNonce(t *testing.T) {
	exec, store, _ := newTestExecutor(t)
	alice := newSigner(t)
	bob := newSigner(t)

	accTrie, err := trie.NewAccountTrie(store, primitives.ZeroHash)
	if err != nil {
		t.Fatalf("NewAccountTrie: %v", err)
	}
	startingBalance, _ := new(uint256.Int).SetString("9000000000000000000000", 10)
	if err := accTrie.PutAccount(alice.addr, types.Account{Balance: startingBalance, CodeHash: types.EmptyCodeHash}); err != nil {
		t.Fatalf("PutAccount(alice): %v", err)
	}
	root, err := accTrie.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx := &types.Transaction{
		Type:     types.TxTypeLegacy,
		Kind:     types.KindTransfer,
		Nonce:    0,
		To:       &bob.addr,
		Value:    new(uint256.Int).Mul(uint256.NewInt(20), uint256.NewInt(1_000_000_000_000_000_000)), // 20 ghost
		GasLimit: 21_000,
		GasPrice: gwei(1),
	}
	alice.sign(t, tx)

	header := &types.BlockHeader{ProducerAddress: bob.addr, GasLimit: 30_000_000}
	result, err := exec.ApplyBlock(context.Background(), store, root, header, []*types.Transaction{tx})
	if err != nil {
		t.Fatalf("ApplyBlock: %v", err)
	}
	if len(result.Receipts) != 1 || result.Receipts[0].Status != types.ReceiptStatusSuccess {
		t.Fatalf("expected a single successful receipt, got %+v", result.Receipts)
	}
	if result.Receipts[0].GasUsed != 21_000 {
		t.Errorf("GasUsed = %d, want 21000 (a plain transfer costs exactly intrinsic gas)", result.Receipts[0].GasUsed)
	}

	finalTrie, err := trie.NewAccountTrie(store, result.StateRoot)
	if err != nil {
		t.Fatalf("NewAccountTrie(final): %v", err)
	}
	aliceAcct, err := finalTrie.GetAccount(alice.addr)
	if err != nil {
		t.Fatalf("GetAccount(alice): %v", err)
	}
	if aliceAcct.Nonce != 1 {
		t.Errorf("alice nonce = %d, want 1", aliceAcct.Nonce)
	}
	// 9000 ghost - 20 ghost value - 21000 * 1 gwei gas.
	wantAliceBalance, _ := new(uint256.Int).SetString("8979999979000000000000", 10)
	if aliceAcct.Balance.Cmp(wantAliceBalance) != 0 {
		t.Errorf("alice balance = %s, want %s", aliceAcct.Balance, wantAliceBalance)
	}

	bobAcct, err := finalTrie.GetAccount(bob.addr)
	if err != nil {
		t.Fatalf("GetAccount(bob): %v", err)
	}
	wantBobBalance := new(uint256.Int).Mul(uint256.NewInt(20), uint256.NewInt(1_000_000_000_000_000_000))
	if bobAcct.Balance.Cmp(wantBobBalance) != 0 {
		t.Errorf("bob balance = %s, want %s (value only; the fee/reward credit goes to the separate producer account)", bobAcct.Balance, wantBobBalance)
	}
}

// TestDynamicFeeEffectiveGasPrice exercises scenario S6: effective gas
// price under a type-2 transaction is min(max_fee, base_fee+priority_fee).
func TestDynamicFeeEffectiveGasPrice(t *testing.T) {
	exec, store, _ := newTestExecutor(t)
	alice := newSigner(t)
	bob := newSigner(t)

	accTrie, err := trie.NewAccountTrie(store, primitives.ZeroHash)
	if err != nil {
		t.Fatalf("NewAccountTrie: %v", err)
	}
	startingBalance, _ := new(uint256.Int).SetString("9000000000000000000000", 10)
	if err := accTrie.PutAccount(alice.addr, types.Account{Balance: startingBalance, CodeHash: types.EmptyCodeHash}); err != nil {
		t.Fatalf("PutAccount(alice): %v", err)
	}
	root, err := accTrie.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx := &types.Transaction{
		Type:                 types.TxTypeDynamicFee,
		Kind:                 types.KindTransfer,
		Nonce:                0,
		To:                   &bob.addr,
		Value:                uint256.NewInt(0),
		GasLimit:             21_000,
		MaxFeePerGas:         gwei(20),
		MaxPriorityFeePerGas: gwei(3),
	}
	alice.sign(t, tx)

	header := &types.BlockHeader{ProducerAddress: bob.addr, GasLimit: 30_000_000, BaseFee: 5_000_000_000} // 5 gwei
	result, err := exec.ApplyBlock(context.Background(), store, root, header, []*types.Transaction{tx})
	if err != nil {
		t.Fatalf("ApplyBlock: %v", err)
	}

	wantFeePerGas := gwei(8) // min(20, 5+3) = 8 gwei
	wantTotalFee := new(uint256.Int).Mul(wantFeePerGas, uint256.NewInt(21_000))

	finalTrie, err := trie.NewAccountTrie(store, result.StateRoot)
	if err != nil {
		t.Fatalf("NewAccountTrie(final): %v", err)
	}
	aliceAcct, err := finalTrie.GetAccount(alice.addr)
	if err != nil {
		t.Fatalf("GetAccount(alice): %v", err)
	}
	spent := new(uint256.Int).Sub(startingBalance, aliceAcct.Balance)
	if spent.Cmp(wantTotalFee) != 0 {
		t.Errorf("alice spent %s in gas, want %s (8 gwei * 21000)", spent, wantTotalFee)
	}
}

// TestNonceMismatchSkipsTransaction exercises the skippable-failure path:
// a transaction whose declared nonce disagrees with the account's actual
// nonce is dropped from the block rather than aborting it, so a producer
// assembling a bundle that includes one bad transaction still produces a
// block for everything else in it.
func TestNonceMismatchSkipsTransaction(t *testing.T) {
	exec, store, _ := newTestExecutor(t)
	alice := newSigner(t)
	bob := newSigner(t)

	accTrie, err := trie.NewAccountTrie(store, primitives.ZeroHash)
	if err != nil {
		t.Fatalf("NewAccountTrie: %v", err)
	}
	startingBalance, _ := new(uint256.Int).SetString("9000000000000000000000", 10)
	if err := accTrie.PutAccount(alice.addr, types.Account{Balance: startingBalance, CodeHash: types.EmptyCodeHash}); err != nil {
		t.Fatalf("PutAccount(alice): %v", err)
	}
	root, err := accTrie.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	good := &types.Transaction{
		Type:     types.TxTypeLegacy,
		Kind:     types.KindTransfer,
		Nonce:    0,
		To:       &bob.addr,
		Value:    uint256.NewInt(0),
		GasLimit: 21_000,
		GasPrice: gwei(1),
	}
	alice.sign(t, good)

	bad := &types.Transaction{
		Type:     types.TxTypeLegacy,
		Kind:     types.KindTransfer,
		Nonce:    5, // alice's nonce is 1 at this point in the block, after good applied
		To:       &bob.addr,
		Value:    uint256.NewInt(0),
		GasLimit: 21_000,
		GasPrice: gwei(1),
	}
	alice.sign(t, bad)

	header := &types.BlockHeader{ProducerAddress: bob.addr, GasLimit: 30_000_000}
	result, err := exec.ApplyBlock(context.Background(), store, root, header, []*types.Transaction{good, bad})
	if err != nil {
		t.Fatalf("ApplyBlock: %v", err)
	}
	if len(result.IncludedTxs) != 1 || result.IncludedTxs[0] != good {
		t.Fatalf("IncludedTxs = %+v, want only the good transaction", result.IncludedTxs)
	}
	if len(result.Receipts) != 1 {
		t.Fatalf("Receipts = %+v, want a single receipt for the good transaction", result.Receipts)
	}
}

// TestInsufficientFundsSkipsTransaction exercises the same skippable-failure
// path for a sender whose balance cannot cover a bundled transaction: the
// mempool does not simulate cumulative balance across a sender's bundled
// transactions, so this can occur even against an honestly-assembled
// bundle.
func TestInsufficientFundsSkipsTransaction(t *testing.T) {
	exec, store, _ := newTestExecutor(t)
	alice := newSigner(t)
	bob := newSigner(t)

	accTrie, err := trie.NewAccountTrie(store, primitives.ZeroHash)
	if err != nil {
		t.Fatalf("NewAccountTrie: %v", err)
	}
	if err := accTrie.PutAccount(alice.addr, types.Account{Balance: uint256.NewInt(0), CodeHash: types.EmptyCodeHash}); err != nil {
		t.Fatalf("PutAccount(alice): %v", err)
	}
	root, err := accTrie.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx := &types.Transaction{
		Type:     types.TxTypeLegacy,
		Kind:     types.KindTransfer,
		Nonce:    0,
		To:       &bob.addr,
		Value:    uint256.NewInt(0),
		GasLimit: 21_000,
		GasPrice: gwei(1),
	}
	alice.sign(t, tx)

	header := &types.BlockHeader{ProducerAddress: bob.addr, GasLimit: 30_000_000}
	result, err := exec.ApplyBlock(context.Background(), store, root, header, []*types.Transaction{tx})
	if err != nil {
		t.Fatalf("ApplyBlock: %v", err)
	}
	if len(result.IncludedTxs) != 0 || len(result.Receipts) != 0 {
		t.Fatalf("IncludedTxs/Receipts = %+v/%+v, want both empty", result.IncludedTxs, result.Receipts)
	}
}
