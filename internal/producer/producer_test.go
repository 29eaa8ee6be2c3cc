package producer_test

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/holiman/uint256"

	"github.com/ghostkasd/ghostkasd/internal/chainspec"
	"github.com/ghostkasd/ghostkasd/internal/dagstore"
	"github.com/ghostkasd/ghostkasd/internal/executor"
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

// keySigner wraps a secp256k1 key pair as both a transaction signer and a
// producer.Signer, the role cmd/ghostkasd's key-management layer fills in
// production.
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

// TestProduceAppliesBundleAndAdmitsBlock exercises the full assembly
// pipeline: a pending transfer is pulled from the mempool, executed,
// committed to a signed header, admitted locally, and cleared from the
// pool.
func TestProduceAppliesBundleAndAdmitsBlock(t *testing.T) {
	kv, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	t.Cleanup(func() { kv.Close() })

	alice := newKeySigner(t)
	bob := newKeySigner(t)

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

	spec := chainspec.Default()
	spec.TreasuryAddress = primitives.Address{0xAA}
	now := time.Unix(1_700_000_000, 0).UTC()
	clock := fixedClock{now: now}

	store, err := dagstore.Open(kv, spec, clock)
	if err != nil {
		t.Fatalf("dagstore.Open: %v", err)
	}
	genesis := &types.BlockHeader{
		Timestamp: now.Add(-time.Hour),
		Height:    0,
		StateRoot: fundedRoot,
	}
	if err := store.SeedGenesis(genesis); err != nil {
		t.Fatalf("SeedGenesis: %v", err)
	}

	accountSource, err := producer.NewAccountSource(kv, fundedRoot)
	if err != nil {
		t.Fatalf("NewAccountSource: %v", err)
	}
	pool := mempool.New(spec, clock, accountSource)

	tx := &types.Transaction{
		Type:     types.TxTypeLegacy,
		Kind:     types.KindTransfer,
		Nonce:    0,
		To:       &bob.addr,
		Value:    gwei(1_000_000_000), // 1 ghost (1e18 wei)
		GasLimit: 21_000,
		GasPrice: gwei(1),
	}
	alice.signTx(t, tx)
	if err := pool.Admit(tx, uint256.NewInt(0)); err != nil {
		t.Fatalf("Admit: %v", err)
	}

	exec := executor.New(spec, nil)
	prod := producer.New(spec, kv, store, pool, exec, clock, bob)

	header, included, err := prod.Produce(context.Background())
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}

	if header.Height != 1 {
		t.Errorf("Height = %d, want 1", header.Height)
	}
	if header.SelectedParent != genesis.Hash() {
		t.Errorf("SelectedParent = %s, want genesis hash", header.SelectedParent)
	}
	if len(included) != 1 || included[0].Hash() != tx.Hash() {
		t.Fatalf("expected the pending transfer to be included, got %d txs", len(included))
	}
	if !store.HasBlock(header.Hash()) {
		t.Error("expected the produced block to be locally admitted")
	}
	if pool.Len() != 0 {
		t.Errorf("pool.Len() = %d, want 0 after production", pool.Len())
	}

	tip, err := store.SelectedTip()
	if err != nil {
		t.Fatalf("SelectedTip: %v", err)
	}
	if tip != header.Hash() {
		t.Errorf("SelectedTip = %s, want the newly produced block", tip)
	}
}
