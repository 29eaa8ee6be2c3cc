package main

import (
	"encoding/hex"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/pkg/errors"

	"github.com/ghostkasd/ghostkasd/internal/primitives"
)

// producerSigner is the concrete producer.Signer cmd/ghostkasd hands to
// internal/producer: a loaded secp256k1 key signing over the compact
// r‖s‖v layout primitives.RecoverAddress expects back, the same repacking
// internal/producer's tests exercise against a throwaway key.
type producerSigner struct {
	priv *btcec.PrivateKey
	addr primitives.Address
}

// loadOrCreateProducerKey reads a hex-encoded secp256k1 private key from
// path, generating and persisting a new one on first run.
func loadOrCreateProducerKey(path string) (*producerSigner, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return generateProducerKey(path)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read producer key file")
	}

	keyBytes, err := hex.DecodeString(string(raw))
	if err != nil {
		return nil, errors.Wrap(err, "producer key file is not valid hex")
	}
	priv, pub := btcec.PrivKeyFromBytes(keyBytes)
	_ = pub
	return signerFromKey(priv)
}

func generateProducerKey(path string) (*producerSigner, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate producer key")
	}
	encoded := hex.EncodeToString(priv.Serialize())
	if err := os.WriteFile(path, []byte(encoded), 0600); err != nil {
		return nil, errors.Wrap(err, "failed to persist producer key")
	}
	return signerFromKey(priv)
}

func signerFromKey(priv *btcec.PrivateKey) (*producerSigner, error) {
	uncompressed := priv.PubKey().SerializeUncompressed()
	addr, err := primitives.AddressFromPublicKey(uncompressed[1:])
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive address from producer key")
	}
	return &producerSigner{priv: priv, addr: addr}, nil
}

// Address implements producer.Signer.
func (s *producerSigner) Address() primitives.Address { return s.addr }

// Sign implements producer.Signer.
func (s *producerSigner) Sign(hash primitives.Hash) (primitives.Signature, error) {
	compact := ecdsa.SignCompact(s.priv, hash[:], false)
	var sig primitives.Signature
	copy(sig[:64], compact[1:])
	sig[64] = compact[0] - 27
	return sig, nil
}
