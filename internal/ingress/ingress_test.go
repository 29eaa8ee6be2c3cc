package ingress_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/holiman/uint256"

	"github.com/ghostkasd/ghostkasd/internal/chainspec"
	"github.com/ghostkasd/ghostkasd/internal/dagstore"
	"github.com/ghostkasd/ghostkasd/internal/executor"
	"github.com/ghostkasd/ghostkasd/internal/ingress"
	"github.com/ghostkasd/ghostkasd/internal/kvstore"
	"github.com/ghostkasd/ghostkasd/internal/mempool"
	"github.com/ghostkasd/ghostkasd/internal/primitives"
	"github.com/ghostkasd/ghostkasd/internal/producer"
	"github.com/ghostkasd/ghostkasd/internal/trie"
	"github.com/ghostkasd/ghostkasd/internal/types"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time           { return c.now }
func (c fixedClock) Monotonic() time.Duration { return 0 }

type keySigner struct {
	priv *btcec.PrivateKey
	addr primitives.Address
}

func newKeySigner(t *testing.T) keySigner {
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
	return keySigner{priv: priv, addr: addr}
}

func (s keySigner) Address() primitives.Address { return s.addr }

func (s keySigner) Sign(hash primitives.Hash) (primitives.Signature, error) {
	compact := ecdsa.SignCompact(s.priv, hash[:], false)
	var sig primitives.Signature
	copy(sig[:64], compact[1:])
	sig[64] = compact[0] - 27
	return sig, nil
}

func (s keySigner) signTx(t *testing.T, tx *types.Transaction) {
	t.Helper()
	tx.From = s.addr
	sig, err := s.Sign(tx.SigningHash())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	tx.Signature = sig
}

func gwei(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000))
}

// newNode builds an independent store/pool/executor triple sharing the
// same ChainSpec and genesis, simulating a second node on the same
// network. genesis.StateRoot is the account state the pool's nonce source
// reads.
func newNode(t *testing.T, spec chainspec.ChainSpec, clock fixedClock, genesis *types.BlockHeader) (*kvstore.Store, *dagstore.Store, *mempool.Pool, *executor.Executor) {
	t.Helper()
	kv, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	t.Cleanup(func() { kv.Close() })

	store, err := dagstore.Open(kv, spec, clock)
	if err != nil {
		t.Fatalf("dagstore.Open: %v", err)
	}
	if err := store.SeedGenesis(genesis); err != nil {
		t.Fatalf("SeedGenesis: %v", err)
	}

	accountSource, err := producer.NewAccountSource(kv, genesis.StateRoot)
	if err != nil {
		t.Fatalf("NewAccountSource: %v", err)
	}
	pool := mempool.New(spec, clock, accountSource)
	exec := executor.New(spec, nil)
	return kv, store, pool, exec
}

// TestAdmitBlockAcceptsValidReExecution exercises the reverse path end to
// end: a block produced on one node is encoded, decoded and re-executed by
// a second node's Handler, and admitted only because re-execution
// reproduces the exact roots the header declares.
func TestAdmitBlockAcceptsValidReExecution(t *testing.T) {
	spec := chainspec.Default()
	spec.TreasuryAddress = primitives.Address{0xAA}
	now := time.Unix(1_700_000_000, 0).UTC()
	clock := fixedClock{now: now}

	alice := newKeySigner(t)
	bob := newKeySigner(t)

	producerKV, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	t.Cleanup(func() { producerKV.Close() })

	accTrie, err := trie.NewAccountTrie(producerKV, primitives.ZeroHash)
	if err != nil {
		t.Fatalf("NewAccountTrie: %v", err)
	}
	startingBalance, _ := new(uint256.Int).SetString("9000000000000000000000", 10)
	if err := accTrie.PutAccount(alice.addr, types.Account{Balance: startingBalance, CodeHash: types.EmptyCodeHash}); err != nil {
		t.Fatalf("PutAccount(alice): %v", err)
	}
	fundedRoot, err := accTrie.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	genesis := &types.BlockHeader{
		Timestamp: now.Add(-time.Hour),
		Height:    0,
		StateRoot: fundedRoot,
	}

	producerStore, err := dagstore.Open(producerKV, spec, clock)
	if err != nil {
		t.Fatalf("dagstore.Open: %v", err)
	}
	if err := producerStore.SeedGenesis(genesis); err != nil {
		t.Fatalf("SeedGenesis: %v", err)
	}
	accountSource, err := producer.NewAccountSource(producerKV, fundedRoot)
	if err != nil {
		t.Fatalf("NewAccountSource: %v", err)
	}
	producerPool := mempool.New(spec, clock, accountSource)

	tx := &types.Transaction{
		Type:     types.TxTypeLegacy,
		Kind:     types.KindTransfer,
		Nonce:    0,
		To:       &bob.addr,
		Value:    gwei(1_000_000_000),
		GasLimit: 21_000,
		GasPrice: gwei(1),
	}
	alice.signTx(t, tx)
	if err := producerPool.Admit(tx, uint256.NewInt(0)); err != nil {
		t.Fatalf("Admit: %v", err)
	}

	prod := producer.New(spec, producerKV, producerStore, producerPool, executor.New(spec, nil), clock, bob)
	header, included, err := prod.Produce(context.Background())
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}

	var buf bytes.Buffer
	block := &types.Block{Header: *header, Transactions: included}
	if err := block.Encode(&buf); err != nil {
		t.Fatalf("Block.Encode: %v", err)
	}

	peerKV, peerStore, peerPool, peerExec := newNode(t, spec, clock, genesis)
	handler := ingress.NewHandler(spec, peerKV, peerStore, peerPool, peerExec)

	if err := handler.AdmitBlock(context.Background(), buf.Bytes()); err != nil {
		t.Fatalf("AdmitBlock: %v", err)
	}
	if !peerStore.HasBlock(header.Hash()) {
		t.Error("expected the incoming block to be admitted")
	}

	tip, err := peerStore.SelectedTip()
	if err != nil {
		t.Fatalf("SelectedTip: %v", err)
	}
	if tip != header.Hash() {
		t.Errorf("SelectedTip = %s, want the admitted block", tip)
	}
}

// TestAdmitBlockRejectsTamperedStateRoot exercises the rejection path: a
// header whose declared state_root disagrees with re-execution must not be
// admitted, even though its producer signature is valid. The header sets no
// GhostDAG fields; ingress compares the state root before it hands the
// header to the DAG store, which is where those would be checked.
func TestAdmitBlockRejectsTamperedStateRoot(t *testing.T) {
	spec := chainspec.Default()
	now := time.Unix(1_700_000_000, 0).UTC()
	clock := fixedClock{now: now}
	bob := newKeySigner(t)

	genesis := &types.BlockHeader{
		Timestamp: now.Add(-time.Hour),
		Height:    0,
		StateRoot: primitives.ZeroHash,
	}

	kv, store, pool, exec := newNode(t, spec, clock, genesis)
	handler := ingress.NewHandler(spec, kv, store, pool, exec)

	header := &types.BlockHeader{
		SelectedParent:  genesis.Hash(),
		Timestamp:       now,
		Height:          1,
		ProducerAddress: bob.Address(),
		StateRoot:       primitives.HashData([]byte("not the real root")),
	}
	sig, err := bob.Sign(header.SigningHash())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	header.Signature = sig

	var buf bytes.Buffer
	block := &types.Block{Header: *header}
	if err := block.Encode(&buf); err != nil {
		t.Fatalf("Block.Encode: %v", err)
	}

	if err := handler.AdmitBlock(context.Background(), buf.Bytes()); err == nil {
		t.Fatal("expected AdmitBlock to reject a tampered state root")
	}
	if store.HasBlock(header.Hash()) {
		t.Error("tampered block must not be admitted")
	}
}

// TestAdmitTransactionSubmitsToPool exercises the transaction half of the
// ingress path: a decoded transaction reaches the mempool the same way a
// locally-submitted one would.
func TestAdmitTransactionSubmitsToPool(t *testing.T) {
	spec := chainspec.Default()
	now := time.Unix(1_700_000_000, 0).UTC()
	clock := fixedClock{now: now}
	alice := newKeySigner(t)
	bob := newKeySigner(t)

	kv, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	t.Cleanup(func() { kv.Close() })

	accTrie, err := trie.NewAccountTrie(kv, primitives.ZeroHash)
	if err != nil {
		t.Fatalf("NewAccountTrie: %v", err)
	}
	startingBalance, _ := new(uint256.Int).SetString("9000000000000000000000", 10)
	if err := accTrie.PutAccount(alice.addr, types.Account{Balance: startingBalance, CodeHash: types.EmptyCodeHash}); err != nil {
		t.Fatalf("PutAccount(alice): %v", err)
	}
	fundedRoot, err := accTrie.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	genesis := &types.BlockHeader{Timestamp: now.Add(-time.Hour), Height: 0, StateRoot: fundedRoot}
	store, err := dagstore.Open(kv, spec, clock)
	if err != nil {
		t.Fatalf("dagstore.Open: %v", err)
	}
	if err := store.SeedGenesis(genesis); err != nil {
		t.Fatalf("SeedGenesis: %v", err)
	}
	accountSource, err := producer.NewAccountSource(kv, fundedRoot)
	if err != nil {
		t.Fatalf("NewAccountSource: %v", err)
	}
	pool := mempool.New(spec, clock, accountSource)
	exec := executor.New(spec, nil)
	handler := ingress.NewHandler(spec, kv, store, pool, exec)

	tx := &types.Transaction{
		Type:     types.TxTypeLegacy,
		Kind:     types.KindTransfer,
		Nonce:    0,
		To:       &bob.addr,
		Value:    gwei(1),
		GasLimit: 21_000,
		GasPrice: gwei(1),
	}
	alice.signTx(t, tx)

	var buf bytes.Buffer
	if err := tx.Encode(&buf); err != nil {
		t.Fatalf("tx.Encode: %v", err)
	}

	if err := handler.AdmitTransaction(buf.Bytes()); err != nil {
		t.Fatalf("AdmitTransaction: %v", err)
	}
	if pool.Len() != 1 {
		t.Errorf("pool.Len() = %d, want 1", pool.Len())
	}
}
