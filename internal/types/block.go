package types

import (
	"bytes"
	"io"
	"time"

	"github.com/ghostkasd/ghostkasd/internal/primitives"
)

// BlockHeader carries the DAG topology fields plus the standard
// state/transactions/receipts commitments. A block has
// exactly one selected parent and zero or more merge parents; together
// they form the block's full parent set.
type BlockHeader struct {
	SelectedParent primitives.Hash
	MergeParents   []primitives.Hash

	Timestamp time.Time
	Height    uint64
	BlueScore uint64

	// BlueSetDigest commits to the block's classified blue set, so two
	// blocks that disagree on blue-set membership cannot share a header.
	BlueSetDigest primitives.Hash

	StateRoot        primitives.Hash
	TransactionsRoot primitives.Hash
	ReceiptsRoot     primitives.Hash

	ProducerAddress primitives.Address
	Signature       primitives.Signature

	GasUsed  uint64
	GasLimit uint64

	// BaseFee is the block's EIP-1559-style base fee, used to compute
	// the effective gas price of TxTypeDynamicFee transactions
	//.
	BaseFee uint64
}

// Parents returns the full parent set: the selected parent followed by the
// merge parents, in that order.
func (h *BlockHeader) Parents() []primitives.Hash {
	parents := make([]primitives.Hash, 0, 1+len(h.MergeParents))
	parents = append(parents, h.SelectedParent)
	parents = append(parents, h.MergeParents...)
	return parents
}

// Hash returns the block hash: the keccak256 digest of the header's
// canonical encoding, including its signature.
func (h *BlockHeader) Hash() primitives.Hash {
	var buf bytes.Buffer
	_ = h.encode(&buf, true)
	return primitives.HashData(buf.Bytes())
}

// SigningHash returns the digest the producer signs over: the header's
// canonical encoding without the signature field.
func (h *BlockHeader) SigningHash() primitives.Hash {
	var buf bytes.Buffer
	_ = h.encode(&buf, false)
	return primitives.HashData(buf.Bytes())
}

func (h *BlockHeader) encode(w io.Writer, includeSignature bool) error {
	if err := primitives.WriteHash(w, h.SelectedParent); err != nil {
		return err
	}
	if err := primitives.WriteUint32(w, uint32(len(h.MergeParents))); err != nil {
		return err
	}
	for _, parent := range h.MergeParents {
		if err := primitives.WriteHash(w, parent); err != nil {
			return err
		}
	}
	if err := primitives.WriteUint64(w, uint64(h.Timestamp.Unix())); err != nil {
		return err
	}
	if err := primitives.WriteUint64(w, h.Height); err != nil {
		return err
	}
	if err := primitives.WriteUint64(w, h.BlueScore); err != nil {
		return err
	}
	if err := primitives.WriteHash(w, h.BlueSetDigest); err != nil {
		return err
	}
	if err := primitives.WriteHash(w, h.StateRoot); err != nil {
		return err
	}
	if err := primitives.WriteHash(w, h.TransactionsRoot); err != nil {
		return err
	}
	if err := primitives.WriteHash(w, h.ReceiptsRoot); err != nil {
		return err
	}
	if err := primitives.WriteAddress(w, h.ProducerAddress); err != nil {
		return err
	}
	if err := primitives.WriteUint64(w, h.GasUsed); err != nil {
		return err
	}
	if err := primitives.WriteUint64(w, h.GasLimit); err != nil {
		return err
	}
	if err := primitives.WriteUint64(w, h.BaseFee); err != nil {
		return err
	}
	if includeSignature {
		if _, err := w.Write(h.Signature[:]); err != nil {
			return err
		}
	}
	return nil
}

// Encode serializes the header to its canonical persisted form (signature
// included), used by the DAG store.
func (h *BlockHeader) Encode() []byte {
	var buf bytes.Buffer
	_ = h.encode(&buf, true)
	return buf.Bytes()
}

// DecodeBlockHeader parses the encoding produced by Encode.
func DecodeBlockHeader(data []byte) (*BlockHeader, error) {
	return decodeBlockHeaderFrom(bytes.NewReader(data))
}

func decodeBlockHeaderFrom(r io.Reader) (*BlockHeader, error) {
	h := &BlockHeader{}

	selectedParent, err := primitives.ReadHash(r)
	if err != nil {
		return nil, err
	}
	h.SelectedParent = selectedParent

	mergeParentCount, err := primitives.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	h.MergeParents = make([]primitives.Hash, mergeParentCount)
	for i := range h.MergeParents {
		parent, err := primitives.ReadHash(r)
		if err != nil {
			return nil, err
		}
		h.MergeParents[i] = parent
	}

	timestamp, err := primitives.ReadUint64(r)
	if err != nil {
		return nil, err
	}
	h.Timestamp = time.Unix(int64(timestamp), 0).UTC()

	if h.Height, err = primitives.ReadUint64(r); err != nil {
		return nil, err
	}
	if h.BlueScore, err = primitives.ReadUint64(r); err != nil {
		return nil, err
	}
	if h.BlueSetDigest, err = primitives.ReadHash(r); err != nil {
		return nil, err
	}
	if h.StateRoot, err = primitives.ReadHash(r); err != nil {
		return nil, err
	}
	if h.TransactionsRoot, err = primitives.ReadHash(r); err != nil {
		return nil, err
	}
	if h.ReceiptsRoot, err = primitives.ReadHash(r); err != nil {
		return nil, err
	}
	if h.ProducerAddress, err = primitives.ReadAddress(r); err != nil {
		return nil, err
	}
	if h.GasUsed, err = primitives.ReadUint64(r); err != nil {
		return nil, err
	}
	if h.GasLimit, err = primitives.ReadUint64(r); err != nil {
		return nil, err
	}
	if h.BaseFee, err = primitives.ReadUint64(r); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, h.Signature[:]); err != nil {
		return nil, err
	}
	return h, nil
}

// Block is a header plus its ordered transaction list.
type Block struct {
	Header       BlockHeader
	Transactions []*Transaction
}

// Encode serializes a full block (header, signature included, followed by
// its transactions) for wire transfer between nodes.
func (b *Block) Encode(w io.Writer) error {
	if err := b.Header.encode(w, true); err != nil {
		return err
	}
	if err := primitives.WriteUint32(w, uint32(len(b.Transactions))); err != nil {
		return err
	}
	for _, tx := range b.Transactions {
		if err := tx.Encode(w); err != nil {
			return err
		}
	}
	return nil
}

// DecodeBlock parses the encoding produced by Block.Encode.
func DecodeBlock(r io.Reader) (*Block, error) {
	header, err := decodeBlockHeaderFrom(r)
	if err != nil {
		return nil, err
	}

	count, err := primitives.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	txs := make([]*Transaction, count)
	for i := range txs {
		tx, err := DecodeTransaction(r)
		if err != nil {
			return nil, err
		}
		txs[i] = tx
	}
	return &Block{Header: *header, Transactions: txs}, nil
}

// BuildTransactionsRoot computes the merkle root over the block's canonical
// transaction encodings in inclusion order.
func BuildTransactionsRoot(txs []*Transaction) primitives.Hash {
	hashes := make([]primitives.Hash, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.Hash()
	}
	return MerkleRoot(hashes)
}

// BuildReceiptsRoot computes the merkle root over receipts, in the same
// order as the transactions that produced them.
func BuildReceiptsRoot(receipts []*Receipt) primitives.Hash {
	hashes := make([]primitives.Hash, len(receipts))
	for i, r := range receipts {
		hashes[i] = r.Hash()
	}
	return MerkleRoot(hashes)
}
