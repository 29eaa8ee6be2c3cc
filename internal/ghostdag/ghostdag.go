// Package ghostdag implements the GhostDAG blue-set classification, blue
// score and linear ordering — the heart of the core. It is ported directly
// from blockdag/ghostdag.go and blues.go (the daglabs-btcd implementation
// of the GHOSTDAG protocol itself), with blockNode pointer traversal
// replaced by hash-keyed lookups through the StoreView interface, modeling
// DAG relationships as index tables rather than an in-memory pointer
// graph.
package ghostdag

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/ghostkasd/ghostkasd/internal/chainspec"
	"github.com/ghostkasd/ghostkasd/internal/primitives"
)

// Data is the GhostDAG classification result persisted for a single block:
// its selected parent, the blue score, and the bookkeeping needed to
// classify its own descendants without re-walking the whole DAG.
type Data struct {
	SelectedParent primitives.Hash
	BlueScore      uint64

	// MergeSetBlues is this block's own contribution to the blue set:
	// its selected parent followed by every merge-parent-reachable
	// ancestor classified blue when this block was admitted.
	MergeSetBlues []primitives.Hash

	// MergeSetReds is the rest of the mergeset: ancestors of this block
	// that are not ancestors of its selected parent and were rejected
	// as red (anticone-in-blue would have reached K).
	MergeSetReds []primitives.Hash

	// BluesAnticoneSizes records, for every hash in MergeSetBlues, the
	// number of that block's anticone (as observed at this node) which
	// is itself blue. Querying the blue-anticone size of an ancestor
	// not in MergeSetBlues requires walking the selected-parent chain
	// (see BlueAnticoneSize).
	BluesAnticoneSizes map[primitives.Hash]uint32
}

// StoreView is the read-only surface the classification algorithm needs
// from the DAG store: parent lookup, previously-computed GhostDAG data, and
// ancestor queries.
type StoreView interface {
	// Parents returns the full parent set (selected parent + merge
	// parents) of the given block, which must already be admitted.
	Parents(hash primitives.Hash) ([]primitives.Hash, error)

	// GhostdagDataOf returns the previously-computed Data for an
	// already-classified block.
	GhostdagDataOf(hash primitives.Hash) (*Data, error)

	// IsAncestorOf reports whether ancestor is a (non-strict) ancestor
	// of descendant.
	IsAncestorOf(ancestor, descendant primitives.Hash) (bool, error)
}

// ErrBlueAnticoneSizeExceedsK signals a classification-time invariant
// violation: a block already known blue would gain a blue anticone size of
// K or more, which the classification loop should have prevented.
var ErrBlueAnticoneSizeExceedsK = errors.New("found blue anticone size larger than k")

// SelectParent picks selected_parent = argmax_blue_score(parents), ties
// broken by lexicographically least hash.
func SelectParent(view StoreView, parents []primitives.Hash) (primitives.Hash, error) {
	if len(parents) == 0 {
		return primitives.Hash{}, errors.New("cannot select a parent from an empty parent set")
	}

	best := parents[0]
	bestData, err := view.GhostdagDataOf(best)
	if err != nil {
		return primitives.Hash{}, err
	}

	for _, candidate := range parents[1:] {
		candidateData, err := view.GhostdagDataOf(candidate)
		if err != nil {
			return primitives.Hash{}, err
		}
		if candidateData.BlueScore > bestData.BlueScore ||
			(candidateData.BlueScore == bestData.BlueScore && candidate.Less(best)) {
			best = candidate
			bestData = candidateData
		}
	}
	return best, nil
}

// mergeSet returns the ancestors of newHash (given its parents) that are
// not ancestors of selectedParent. Ported from blockdag/ghostdag.go's
// selectedParentAnticone.
func mergeSet(view StoreView, parents []primitives.Hash, selectedParent primitives.Hash) ([]primitives.Hash, error) {
	inMergeSet := make(map[primitives.Hash]bool)
	inPastOfSelectedParent := make(map[primitives.Hash]bool)
	var queue []primitives.Hash
	var result []primitives.Hash

	for _, parent := range parents {
		if parent == selectedParent {
			continue
		}
		if !inMergeSet[parent] {
			inMergeSet[parent] = true
			queue = append(queue, parent)
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		currentParents, err := view.Parents(current)
		if err != nil {
			return nil, err
		}
		for _, parent := range currentParents {
			if inMergeSet[parent] || inPastOfSelectedParent[parent] {
				continue
			}
			isAncestor, err := view.IsAncestorOf(parent, selectedParent)
			if err != nil {
				return nil, err
			}
			if isAncestor {
				inPastOfSelectedParent[parent] = true
				continue
			}
			inMergeSet[parent] = true
			queue = append(queue, parent)
		}
	}

	return result, nil
}

// BlueAnticoneSize returns the blue anticone size of block from the
// worldview of context, walking context's selected-parent chain until a
// node whose MergeSetBlues (or self) records block is found. Ported from
// blockdag/ghostdag.go's blueAnticoneSize.
func BlueAnticoneSize(view StoreView, block, context primitives.Hash) (uint32, error) {
	current := context
	for {
		data, err := view.GhostdagDataOf(current)
		if err != nil {
			return 0, err
		}
		if size, ok := data.BluesAnticoneSizes[block]; ok {
			return size, nil
		}
		if current == data.SelectedParent {
			// Defensive: selected parent pointing at itself would
			// otherwise loop forever; genesis has no selected
			// parent and is handled by the caller before reaching
			// here.
			break
		}
		current = data.SelectedParent
	}
	return 0, errors.Errorf("block %s is not in the blue set of %s", block, context)
}

// candidateOrder sorts mergeset candidates into a deterministic order:
// ascending blue score of their own selected-parent chain, ties broken by
// lexicographically least hash.
func candidateOrder(view StoreView, candidates []primitives.Hash) ([]primitives.Hash, error) {
	type scored struct {
		hash      primitives.Hash
		blueScore uint64
	}
	scoredCandidates := make([]scored, len(candidates))
	for i, c := range candidates {
		data, err := view.GhostdagDataOf(c)
		if err != nil {
			// Candidate blocks in the mergeset have not been
			// individually classified (only the DAG's own tips
			// are); fall back to zero, which only affects
			// ordering among otherwise-unclassified candidates.
			scoredCandidates[i] = scored{hash: c, blueScore: 0}
			continue
		}
		scoredCandidates[i] = scored{hash: c, blueScore: data.BlueScore}
	}

	sort.Slice(scoredCandidates, func(i, j int) bool {
		if scoredCandidates[i].blueScore != scoredCandidates[j].blueScore {
			return scoredCandidates[i].blueScore < scoredCandidates[j].blueScore
		}
		return scoredCandidates[i].hash.Less(scoredCandidates[j].hash)
	})

	ordered := make([]primitives.Hash, len(scoredCandidates))
	for i, sc := range scoredCandidates {
		ordered[i] = sc.hash
	}
	return ordered, nil
}

// Classify computes the GhostDAG Data for a new block given its parent
// set. It is the direct hash-indexed port of blockdag/ghostdag.go's
// ghostdag function.
func Classify(view StoreView, k chainspec.KType, newHash primitives.Hash, parents []primitives.Hash) (*Data, error) {
	selectedParent, err := SelectParent(view, parents)
	if err != nil {
		return nil, err
	}

	selectedParentData, err := view.GhostdagDataOf(selectedParent)
	if err != nil {
		return nil, err
	}

	data := &Data{
		SelectedParent:     selectedParent,
		BluesAnticoneSizes: map[primitives.Hash]uint32{selectedParent: 0},
	}
	data.MergeSetBlues = append(data.MergeSetBlues, selectedParent)

	candidates, err := mergeSet(view, parents, selectedParent)
	if err != nil {
		return nil, err
	}
	candidates, err = candidateOrder(view, candidates)
	if err != nil {
		return nil, err
	}

	kLimit := uint32(k)

	for _, candidate := range candidates {
		candidateBluesAnticoneSizes := make(map[primitives.Hash]uint32)
		var candidateAnticoneSize uint32
		possiblyBlue := true

		// Walk the new block's own selected-parent chain, checking the
		// blue anticone size candidate would add to every block
		// already counted blue. The first chainBlues considered is
		// the new block's own partial blue set under construction
		// (data.MergeSetBlues); subsequent iterations walk chain's
		// selected parent toward genesis via each block's own
		// persisted Data.
		chain := selectedParent
		chainBlues := data.MergeSetBlues
		atGenesis := false

		for possiblyBlue && !atGenesis {
			for _, blue := range chainBlues {
				isAncestorOfCandidate, err := view.IsAncestorOf(blue, candidate)
				if err != nil {
					return nil, err
				}
				if isAncestorOfCandidate {
					continue
				}

				size, ok := data.BluesAnticoneSizes[blue]
				if !ok {
					size, err = BlueAnticoneSize(view, blue, selectedParent)
					if err != nil {
						return nil, err
					}
				}
				candidateBluesAnticoneSizes[blue] = size
				candidateAnticoneSize++

				if candidateAnticoneSize > kLimit || size == kLimit {
					possiblyBlue = false
					break
				}
			}

			if !possiblyBlue {
				break
			}

			chainData, err := view.GhostdagDataOf(chain)
			if err != nil {
				return nil, err
			}
			chainBlues = chainData.MergeSetBlues
			if chainData.SelectedParent == chain {
				// chain is genesis: its blue set is empty and it has no
				// further ancestors to check.
				atGenesis = true
				break
			}
			chain = chainData.SelectedParent
		}

		if possiblyBlue {
			data.MergeSetBlues = append(data.MergeSetBlues, candidate)
			data.BluesAnticoneSizes[candidate] = candidateAnticoneSize
			for blue, size := range candidateBluesAnticoneSizes {
				data.BluesAnticoneSizes[blue] = size + 1
			}
			if uint32(len(data.MergeSetBlues)) == kLimit+1 {
				break
			}
		} else {
			data.MergeSetReds = append(data.MergeSetReds, candidate)
		}
	}

	// Any candidate not yet classified (loop broke early once K+1 blues
	// were found) is red.
	classified := make(map[primitives.Hash]bool, len(data.MergeSetBlues))
	for _, b := range data.MergeSetBlues {
		classified[b] = true
	}
	for _, c := range candidates {
		if !classified[c] {
			alreadyRed := false
			for _, r := range data.MergeSetReds {
				if r == c {
					alreadyRed = true
					break
				}
			}
			if !alreadyRed {
				data.MergeSetReds = append(data.MergeSetReds, c)
			}
		}
	}

	data.BlueScore = selectedParentData.BlueScore + uint64(len(data.MergeSetBlues))
	return data, nil
}

// BlueSetDigest commits to a block's classified blue set, matching
// BlockHeader.BlueSetDigest's purpose. The blue set is
// sorted before hashing since Classify builds MergeSetBlues in
// candidate-processing order, not a canonical one.
func BlueSetDigest(data *Data) primitives.Hash {
	blues := append([]primitives.Hash(nil), data.MergeSetBlues...)
	sort.Slice(blues, func(i, j int) bool { return blues[i].Less(blues[j]) })

	var buf []byte
	for _, h := range blues {
		buf = append(buf, h[:]...)
	}
	return primitives.HashData(buf)
}
