package primitives_test

import (
	"bytes"
	"testing"

	"github.com/ghostkasd/ghostkasd/internal/primitives"
)

// TestAddressNormalization checks that the 20-byte and zero-padded
// 32-byte encodings of the same account normalize to an identical
// Address.
func TestAddressNormalization(t *testing.T) {
	raw20 := bytes.Repeat([]byte{0xAB}, primitives.AddressSize)

	addr20, err := primitives.NewAddress(raw20)
	if err != nil {
		t.Fatalf("NewAddress(20-byte): unexpected error: %v", err)
	}

	padded := append(make([]byte, 12), raw20...)
	addr32, err := primitives.NewAddress(padded)
	if err != nil {
		t.Fatalf("NewAddress(32-byte padded): unexpected error: %v", err)
	}

	if addr20 != addr32 {
		t.Errorf("normalization mismatch: got %s and %s, want equal", addr20, addr32)
	}
}

func TestAddressRejectsBadShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"too short", make([]byte, 19)},
		{"too long", make([]byte, 21)},
		{"32 bytes non-zero prefix", append([]byte{0x01}, make([]byte, 31)...)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := primitives.NewAddress(test.raw); err != primitives.ErrInvalidAddressFormat {
				t.Errorf("got error %v, want ErrInvalidAddressFormat", err)
			}
		})
	}
}

func TestContractAddressDeterministic(t *testing.T) {
	sender, err := primitives.NewAddress(bytes.Repeat([]byte{0x01}, primitives.AddressSize))
	if err != nil {
		t.Fatalf("NewAddress: %v", err)
	}

	first := primitives.ContractAddress(sender, 0)
	second := primitives.ContractAddress(sender, 0)
	if first != second {
		t.Errorf("ContractAddress is not deterministic for identical inputs")
	}

	third := primitives.ContractAddress(sender, 1)
	if first == third {
		t.Errorf("ContractAddress did not vary with nonce")
	}
}
