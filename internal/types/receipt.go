package types

import (
	"bytes"
	"io"

	"github.com/ghostkasd/ghostkasd/internal/primitives"
)

// ReceiptStatus is the outcome of executing a single transaction
//.
type ReceiptStatus uint8

const (
	ReceiptStatusFailed ReceiptStatus = iota
	ReceiptStatusSuccess
)

// Log is a single event emitted during transaction execution.
type Log struct {
	Address primitives.Address
	Topics  []primitives.Hash
	Data    []byte
}

// Receipt records the outcome of applying one transaction.
// Receipts are written once at admission and never mutated.
type Receipt struct {
	TxHash            primitives.Hash
	Status            ReceiptStatus
	GasUsed           uint64
	CumulativeGasUsed uint64
	Logs              []Log
	Output            []byte
}

// Hash returns the receipt's content-addressed identifier, used to build
// receipts_root.
func (r *Receipt) Hash() primitives.Hash {
	var buf bytes.Buffer
	buf.Write(r.TxHash[:])
	buf.WriteByte(byte(r.Status))
	_ = primitives.WriteUint64(&buf, r.GasUsed)
	_ = primitives.WriteUint64(&buf, r.CumulativeGasUsed)
	for _, log := range r.Logs {
		buf.Write(log.Address[:])
		for _, topic := range log.Topics {
			buf.Write(topic[:])
		}
		buf.Write(log.Data)
	}
	buf.Write(r.Output)
	return primitives.HashData(buf.Bytes())
}

// Encode writes the receipt's canonical on-disk encoding, stored under
// kvstore.CFReceipts so a block's outcomes can be served back out after
// production.
func (r *Receipt) Encode(w io.Writer) error {
	if err := primitives.WriteHash(w, r.TxHash); err != nil {
		return err
	}
	if err := primitives.WriteByte(w, byte(r.Status)); err != nil {
		return err
	}
	if err := primitives.WriteUint64(w, r.GasUsed); err != nil {
		return err
	}
	if err := primitives.WriteUint64(w, r.CumulativeGasUsed); err != nil {
		return err
	}
	if err := primitives.WriteUint32(w, uint32(len(r.Logs))); err != nil {
		return err
	}
	for _, log := range r.Logs {
		if err := primitives.WriteAddress(w, log.Address); err != nil {
			return err
		}
		if err := primitives.WriteByte(w, byte(len(log.Topics))); err != nil {
			return err
		}
		for _, topic := range log.Topics {
			if err := primitives.WriteHash(w, topic); err != nil {
				return err
			}
		}
		if err := primitives.WriteVarBytes(w, log.Data); err != nil {
			return err
		}
	}
	return primitives.WriteVarBytes(w, r.Output)
}

// DecodeReceipt reverses Encode.
func DecodeReceipt(r io.Reader) (*Receipt, error) {
	receipt := &Receipt{}
	var err error
	if receipt.TxHash, err = primitives.ReadHash(r); err != nil {
		return nil, err
	}
	status, err := primitives.ReadByte(r)
	if err != nil {
		return nil, err
	}
	receipt.Status = ReceiptStatus(status)
	if receipt.GasUsed, err = primitives.ReadUint64(r); err != nil {
		return nil, err
	}
	if receipt.CumulativeGasUsed, err = primitives.ReadUint64(r); err != nil {
		return nil, err
	}
	logCount, err := primitives.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	receipt.Logs = make([]Log, logCount)
	for i := range receipt.Logs {
		addr, err := primitives.ReadAddress(r)
		if err != nil {
			return nil, err
		}
		receipt.Logs[i].Address = addr
		topicCount, err := primitives.ReadByte(r)
		if err != nil {
			return nil, err
		}
		receipt.Logs[i].Topics = make([]primitives.Hash, topicCount)
		for j := range receipt.Logs[i].Topics {
			if receipt.Logs[i].Topics[j], err = primitives.ReadHash(r); err != nil {
				return nil, err
			}
		}
		if receipt.Logs[i].Data, err = primitives.ReadVarBytes(r); err != nil {
			return nil, err
		}
	}
	if receipt.Output, err = primitives.ReadVarBytes(r); err != nil {
		return nil, err
	}
	return receipt, nil
}
