// Copyright (c) 2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package types holds the block and transaction model:
// header fields carrying the DAG topology, the two wire type tags (legacy
// and EIP-1559-style fee markets), and the opaque-payload AI transaction
// kinds. Encoding is deterministic and canonical, following a
// wire.MsgTx/MsgBlock-style field-by-field layering but reworked from a
// UTXO input/output list into an account-model transaction tuple.
package types

import (
	"bytes"
	"io"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/ghostkasd/ghostkasd/internal/primitives"
)

// TxType is the one-byte wire type tag distinguishing legacy
// single-gas-price transactions from the fee-cap/priority-fee market
//.
type TxType uint8

const (
	// TxTypeLegacy carries a single GasPrice field.
	TxTypeLegacy TxType = 0
	// TxTypeDynamicFee carries MaxFeePerGas and MaxPriorityFeePerGas.
	TxTypeDynamicFee TxType = 2
)

// TxKind distinguishes what a transaction does, independent of its fee
// wire-type. The four AI kinds are opaque payloads from the
// core's point of view; it charges gas and forwards them to the AI
// Executor collaborator.
type TxKind uint8

const (
	KindTransfer TxKind = iota
	KindContractCreate
	KindContractCall
	KindModelDeploy
	KindInferenceRequest
	KindTrainingJob
	KindLoRAAdapter
)

// IsAIKind reports whether k is one of the AI transaction kinds dispatched
// to the external AI Executor collaborator.
func (k TxKind) IsAIKind() bool {
	switch k {
	case KindModelDeploy, KindInferenceRequest, KindTrainingJob, KindLoRAAdapter:
		return true
	default:
		return false
	}
}

// Transaction is the canonical account-model transaction tuple.
type Transaction struct {
	Type TxType
	Kind TxKind

	Nonce uint64
	From  primitives.Address
	// To is nil for ContractCreate; populated otherwise.
	To *primitives.Address
	Value *uint256.Int

	GasLimit uint64

	// GasPrice is populated for TxTypeLegacy only.
	GasPrice *uint256.Int
	// MaxFeePerGas/MaxPriorityFeePerGas are populated for
	// TxTypeDynamicFee only.
	MaxFeePerGas         *uint256.Int
	MaxPriorityFeePerGas *uint256.Int

	Payload []byte

	Signature primitives.Signature
}

// EffectiveGasPrice computes the gas price actually charged at execution
//: for legacy transactions this is GasPrice; for dynamic-fee
// transactions it is min(MaxFeePerGas, baseFee + MaxPriorityFeePerGas).
func (tx *Transaction) EffectiveGasPrice(baseFee *uint256.Int) *uint256.Int {
	if tx.Type == TxTypeLegacy {
		return new(uint256.Int).Set(tx.GasPrice)
	}

	priorityCeiling := new(uint256.Int).Add(baseFee, tx.MaxPriorityFeePerGas)
	if priorityCeiling.Cmp(tx.MaxFeePerGas) > 0 {
		return new(uint256.Int).Set(tx.MaxFeePerGas)
	}
	return priorityCeiling
}

// IntrinsicGas computes the base-plus-per-byte intrinsic gas cost of the
// transaction, plus the kind-specific surcharge for
// ContractCreate and AI kinds.
func (tx *Transaction) IntrinsicGas(base, perPayloadByte, contractCreateGas, aiKindBaseGas uint64) uint64 {
	gas := base + perPayloadByte*uint64(len(tx.Payload))
	switch {
	case tx.Kind == KindContractCreate:
		gas += contractCreateGas
	case tx.Kind.IsAIKind():
		gas += aiKindBaseGas
	}
	return gas
}

// Hash returns the transaction's content-addressed identifier: the
// keccak256 digest of its canonical encoding including the signature,
// so two transactions with identical fields and signature hash identically.
func (tx *Transaction) Hash() primitives.Hash {
	var buf bytes.Buffer
	// Encode errors are impossible against a bytes.Buffer.
	_ = tx.Encode(&buf)
	return primitives.HashData(buf.Bytes())
}

// SigningHash returns the digest signed over: the transaction's canonical
// encoding without the signature field.
func (tx *Transaction) SigningHash() primitives.Hash {
	var buf bytes.Buffer
	_ = tx.encodeUnsigned(&buf)
	return primitives.HashData(buf.Bytes())
}

func (tx *Transaction) encodeUnsigned(w io.Writer) error {
	if err := primitives.WriteByte(w, byte(tx.Type)); err != nil {
		return err
	}
	if err := primitives.WriteByte(w, byte(tx.Kind)); err != nil {
		return err
	}
	if err := primitives.WriteUint64(w, tx.Nonce); err != nil {
		return err
	}
	if err := primitives.WriteAddress(w, tx.From); err != nil {
		return err
	}
	hasTo := tx.To != nil
	if err := primitives.WriteByte(w, boolByte(hasTo)); err != nil {
		return err
	}
	if hasTo {
		if err := primitives.WriteAddress(w, *tx.To); err != nil {
			return err
		}
	}
	if err := writeUint256(w, tx.Value); err != nil {
		return err
	}
	if err := primitives.WriteUint64(w, tx.GasLimit); err != nil {
		return err
	}
	switch tx.Type {
	case TxTypeLegacy:
		if err := writeUint256(w, tx.GasPrice); err != nil {
			return err
		}
	case TxTypeDynamicFee:
		if err := writeUint256(w, tx.MaxFeePerGas); err != nil {
			return err
		}
		if err := writeUint256(w, tx.MaxPriorityFeePerGas); err != nil {
			return err
		}
	default:
		return errors.Errorf("unknown transaction type %d", tx.Type)
	}
	return primitives.WriteVarBytes(w, tx.Payload)
}

// Encode writes the transaction's full canonical encoding, including its
// signature, to w.
func (tx *Transaction) Encode(w io.Writer) error {
	if err := tx.encodeUnsigned(w); err != nil {
		return err
	}
	_, err := w.Write(tx.Signature[:])
	return err
}

// DecodeTransaction reads a transaction previously written by Encode.
func DecodeTransaction(r io.Reader) (*Transaction, error) {
	tx := &Transaction{}

	typeByte, err := primitives.ReadByte(r)
	if err != nil {
		return nil, err
	}
	tx.Type = TxType(typeByte)

	kindByte, err := primitives.ReadByte(r)
	if err != nil {
		return nil, err
	}
	tx.Kind = TxKind(kindByte)

	if tx.Nonce, err = primitives.ReadUint64(r); err != nil {
		return nil, err
	}
	if tx.From, err = primitives.ReadAddress(r); err != nil {
		return nil, err
	}

	hasToByte, err := primitives.ReadByte(r)
	if err != nil {
		return nil, err
	}
	if hasToByte != 0 {
		to, err := primitives.ReadAddress(r)
		if err != nil {
			return nil, err
		}
		tx.To = &to
	}

	if tx.Value, err = readUint256(r); err != nil {
		return nil, err
	}
	if tx.GasLimit, err = primitives.ReadUint64(r); err != nil {
		return nil, err
	}

	switch tx.Type {
	case TxTypeLegacy:
		if tx.GasPrice, err = readUint256(r); err != nil {
			return nil, err
		}
	case TxTypeDynamicFee:
		if tx.MaxFeePerGas, err = readUint256(r); err != nil {
			return nil, err
		}
		if tx.MaxPriorityFeePerGas, err = readUint256(r); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("unknown transaction type %d", tx.Type)
	}

	if tx.Payload, err = primitives.ReadVarBytes(r); err != nil {
		return nil, err
	}

	sigBytes := make([]byte, primitives.SignatureSize)
	if _, err := io.ReadFull(r, sigBytes); err != nil {
		return nil, err
	}
	copy(tx.Signature[:], sigBytes)

	return tx, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func writeUint256(w io.Writer, v *uint256.Int) error {
	if v == nil {
		v = new(uint256.Int)
	}
	b := v.Bytes32()
	_, err := w.Write(b[:])
	return err
}

func readUint256(r io.Reader) (*uint256.Int, error) {
	var b [32]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(b[:]), nil
}
