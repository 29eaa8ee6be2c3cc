package types_test

import (
	"bytes"
	"testing"

	"github.com/holiman/uint256"

	"github.com/ghostkasd/ghostkasd/internal/primitives"
	"github.com/ghostkasd/ghostkasd/internal/types"
)

func TestTransactionEncodeDecodeRoundTrip(t *testing.T) {
	to, _ := primitives.NewAddress(bytes.Repeat([]byte{0x02}, primitives.AddressSize))
	tx := &types.Transaction{
		Type:     types.TxTypeDynamicFee,
		Kind:     types.KindTransfer,
		Nonce:    7,
		From:     mustAddress(t, 0x01),
		To:       &to,
		Value:    uint256.NewInt(1_000_000_000_000_000_000),
		GasLimit: 21000,
		MaxFeePerGas:         uint256.NewInt(20_000_000_000),
		MaxPriorityFeePerGas: uint256.NewInt(3_000_000_000),
		Payload:              []byte("hello"),
	}

	var buf bytes.Buffer
	if err := tx.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := types.DecodeTransaction(&buf)
	if err != nil {
		t.Fatalf("DecodeTransaction: %v", err)
	}

	if decoded.Nonce != tx.Nonce || decoded.From != tx.From || *decoded.To != *tx.To {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, tx)
	}
	if decoded.Value.Cmp(tx.Value) != 0 {
		t.Errorf("value mismatch: got %s, want %s", decoded.Value, tx.Value)
	}
	if decoded.MaxFeePerGas.Cmp(tx.MaxFeePerGas) != 0 {
		t.Errorf("max fee mismatch")
	}
	if !bytes.Equal(decoded.Payload, tx.Payload) {
		t.Errorf("payload mismatch")
	}
}

// TestEffectiveGasPriceType2 checks a dynamic-fee transaction's effective
// gas price: base_fee=5 gwei, max_fee=20, max_priority=3 => min(20, 5+3) =
// 8 gwei.
func TestEffectiveGasPriceType2(t *testing.T) {
	tx := &types.Transaction{
		Type:                 types.TxTypeDynamicFee,
		MaxFeePerGas:         uint256.NewInt(20_000_000_000),
		MaxPriorityFeePerGas: uint256.NewInt(3_000_000_000),
	}
	baseFee := uint256.NewInt(5_000_000_000)

	got := tx.EffectiveGasPrice(baseFee)
	want := uint256.NewInt(8_000_000_000)
	if got.Cmp(want) != 0 {
		t.Errorf("EffectiveGasPrice = %s, want %s", got, want)
	}
}

func TestEffectiveGasPriceType2CappedByMaxFee(t *testing.T) {
	tx := &types.Transaction{
		Type:                 types.TxTypeDynamicFee,
		MaxFeePerGas:         uint256.NewInt(10_000_000_000),
		MaxPriorityFeePerGas: uint256.NewInt(3_000_000_000),
	}
	baseFee := uint256.NewInt(9_000_000_000)

	got := tx.EffectiveGasPrice(baseFee)
	want := uint256.NewInt(10_000_000_000)
	if got.Cmp(want) != 0 {
		t.Errorf("EffectiveGasPrice = %s, want %s (capped at MaxFeePerGas)", got, want)
	}
}

func TestMerkleRootChangesOnReorder(t *testing.T) {
	a := primitives.HashData([]byte("a"))
	b := primitives.HashData([]byte("b"))

	root1 := types.MerkleRoot([]primitives.Hash{a, b})
	root2 := types.MerkleRoot([]primitives.Hash{b, a})

	if root1 == root2 {
		t.Errorf("MerkleRoot did not change when leaf order changed")
	}
}

func mustAddress(t *testing.T, b byte) primitives.Address {
	t.Helper()
	addr, err := primitives.NewAddress(bytes.Repeat([]byte{b}, primitives.AddressSize))
	if err != nil {
		t.Fatalf("NewAddress: %v", err)
	}
	return addr
}
