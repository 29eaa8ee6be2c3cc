package dagstore

import (
	"bytes"

	"github.com/ghostkasd/ghostkasd/internal/ghostdag"
	"github.com/ghostkasd/ghostkasd/internal/primitives"
)

// encodeHashList/decodeHashList persist the parents_of, children_of and
// tip_set index tables as a length-prefixed run of hashes.
func encodeHashList(hashes []primitives.Hash) []byte {
	var buf bytes.Buffer
	_ = primitives.WriteUint32(&buf, uint32(len(hashes)))
	for _, h := range hashes {
		_ = primitives.WriteHash(&buf, h)
	}
	return buf.Bytes()
}

func decodeHashList(data []byte) ([]primitives.Hash, error) {
	r := bytes.NewReader(data)
	count, err := primitives.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	hashes := make([]primitives.Hash, count)
	for i := range hashes {
		h, err := primitives.ReadHash(r)
		if err != nil {
			return nil, err
		}
		hashes[i] = h
	}
	return hashes, nil
}

// encodeGhostdagData/decodeGhostdagData persist the per-block classification
// result computed once at admission.
func encodeGhostdagData(data *ghostdag.Data) []byte {
	var buf bytes.Buffer
	_ = primitives.WriteHash(&buf, data.SelectedParent)
	_ = primitives.WriteUint64(&buf, data.BlueScore)

	_ = primitives.WriteUint32(&buf, uint32(len(data.MergeSetBlues)))
	for _, h := range data.MergeSetBlues {
		_ = primitives.WriteHash(&buf, h)
	}
	_ = primitives.WriteUint32(&buf, uint32(len(data.MergeSetReds)))
	for _, h := range data.MergeSetReds {
		_ = primitives.WriteHash(&buf, h)
	}
	_ = primitives.WriteUint32(&buf, uint32(len(data.BluesAnticoneSizes)))
	// Map iteration order is randomized by Go; sort by hash so the
	// encoding is deterministic across repeated calls on the same data.
	keys := make([]primitives.Hash, 0, len(data.BluesAnticoneSizes))
	for h := range data.BluesAnticoneSizes {
		keys = append(keys, h)
	}
	sortHashes(keys)
	for _, h := range keys {
		_ = primitives.WriteHash(&buf, h)
		_ = primitives.WriteUint32(&buf, data.BluesAnticoneSizes[h])
	}
	return buf.Bytes()
}

func decodeGhostdagData(raw []byte) (*ghostdag.Data, error) {
	r := bytes.NewReader(raw)
	data := &ghostdag.Data{BluesAnticoneSizes: make(map[primitives.Hash]uint32)}

	selectedParent, err := primitives.ReadHash(r)
	if err != nil {
		return nil, err
	}
	data.SelectedParent = selectedParent

	if data.BlueScore, err = primitives.ReadUint64(r); err != nil {
		return nil, err
	}

	blueCount, err := primitives.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	data.MergeSetBlues = make([]primitives.Hash, blueCount)
	for i := range data.MergeSetBlues {
		if data.MergeSetBlues[i], err = primitives.ReadHash(r); err != nil {
			return nil, err
		}
	}

	redCount, err := primitives.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	data.MergeSetReds = make([]primitives.Hash, redCount)
	for i := range data.MergeSetReds {
		if data.MergeSetReds[i], err = primitives.ReadHash(r); err != nil {
			return nil, err
		}
	}

	anticoneCount, err := primitives.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < anticoneCount; i++ {
		h, err := primitives.ReadHash(r)
		if err != nil {
			return nil, err
		}
		size, err := primitives.ReadUint32(r)
		if err != nil {
			return nil, err
		}
		data.BluesAnticoneSizes[h] = size
	}

	return data, nil
}

func sortHashes(hashes []primitives.Hash) {
	for i := 1; i < len(hashes); i++ {
		for j := i; j > 0 && hashes[j].Less(hashes[j-1]); j-- {
			hashes[j], hashes[j-1] = hashes[j-1], hashes[j]
		}
	}
}
