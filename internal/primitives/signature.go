package primitives

import (
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/pkg/errors"
)

// SignatureSize is the width, in bytes, of a Signature: 32 bytes r, 32
// bytes s, 1 byte recovery id.
const SignatureSize = 65

// CompressedPublicKeySize is the width, in bytes, of the compressed
// secp256k1 public key a Signature is verified against.
const CompressedPublicKeySize = 33

// Signature is a 65-byte r‖s‖v secp256k1 signature.
type Signature [SignatureSize]byte

// ErrInvalidSignatureFormat is returned when raw signature bytes are not
// exactly SignatureSize long.
var ErrInvalidSignatureFormat = errors.New("invalid signature format")

// NewSignature validates and wraps raw signature bytes.
func NewSignature(raw []byte) (Signature, error) {
	var sig Signature
	if len(raw) != SignatureSize {
		return sig, ErrInvalidSignatureFormat
	}
	copy(sig[:], raw)
	return sig, nil
}

// PublicKey is a 33-byte compressed secp256k1 public key.
type PublicKey [CompressedPublicKeySize]byte

// RecoverAddress recovers the signer's address from a signature over the
// given message hash. It is used at transaction-admission time to compare
// against the transaction's declared from_address.
func RecoverAddress(messageHash Hash, sig Signature) (Address, error) {
	// btcec's recoverable-signature format is v‖r‖s (v in [27,34]); ours is
	// r‖s‖v, so re-pack before handing it to the library.
	compact := make([]byte, SignatureSize)
	compact[0] = sig[64] + 27
	copy(compact[1:], sig[:64])

	pubKey, _, err := ecdsa.RecoverCompact(compact, messageHash[:])
	if err != nil {
		return Address{}, errors.Wrap(err, "failed to recover public key from signature")
	}

	uncompressed := pubKey.SerializeUncompressed()
	// uncompressed is 0x04 || X(32) || Y(32); drop the format byte.
	return AddressFromPublicKey(uncompressed[1:])
}
