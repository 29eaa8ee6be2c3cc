package ghostdag_test

import (
	"testing"

	"github.com/ghostkasd/ghostkasd/internal/chainspec"
	"github.com/ghostkasd/ghostkasd/internal/ghostdag"
	"github.com/ghostkasd/ghostkasd/internal/primitives"
)

// memoryView is a small in-memory StoreView used to exercise Classify
// without a real DAG store. Ancestry is tracked explicitly as a transitive
// closure rather than recomputed, which is adequate for the small test DAGs
// built here.
type memoryView struct {
	parents   map[primitives.Hash][]primitives.Hash
	ancestors map[primitives.Hash]map[primitives.Hash]bool
	data      map[primitives.Hash]*ghostdag.Data
}

func newMemoryView() *memoryView {
	return &memoryView{
		parents:   make(map[primitives.Hash][]primitives.Hash),
		ancestors: make(map[primitives.Hash]map[primitives.Hash]bool),
		data:      make(map[primitives.Hash]*ghostdag.Data),
	}
}

func (v *memoryView) Parents(hash primitives.Hash) ([]primitives.Hash, error) {
	return v.parents[hash], nil
}

func (v *memoryView) GhostdagDataOf(hash primitives.Hash) (*ghostdag.Data, error) {
	d, ok := v.data[hash]
	if !ok {
		return nil, errNotFound(hash)
	}
	return d, nil
}

func (v *memoryView) IsAncestorOf(ancestor, descendant primitives.Hash) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	return v.ancestors[descendant][ancestor], nil
}

type notFoundError struct{ hash primitives.Hash }

func (e notFoundError) Error() string { return "not found: " + e.hash.String() }
func errNotFound(hash primitives.Hash) error { return notFoundError{hash} }

func blockHash(label string) primitives.Hash {
	return primitives.HashData([]byte(label))
}

// addGenesis seeds a genesis block whose selected parent is itself, the
// sentinel this package uses in place of a nil pointer.
func (v *memoryView) addGenesis(label string) primitives.Hash {
	hash := blockHash(label)
	v.data[hash] = &ghostdag.Data{
		SelectedParent:     hash,
		BlueScore:          0,
		MergeSetBlues:      nil,
		BluesAnticoneSizes: map[primitives.Hash]uint32{},
	}
	v.ancestors[hash] = map[primitives.Hash]bool{}
	return hash
}

// addBlock classifies and records a new block built on top of parents,
// maintaining the ancestor closure for future IsAncestorOf queries.
func (v *memoryView) addBlock(t *testing.T, k chainspec.KType, label string, parents ...primitives.Hash) primitives.Hash {
	t.Helper()
	hash := blockHash(label)
	v.parents[hash] = parents

	data, err := ghostdag.Classify(v, k, hash, parents)
	if err != nil {
		t.Fatalf("Classify(%s): %v", label, err)
	}
	v.data[hash] = data

	ancestorSet := map[primitives.Hash]bool{}
	for _, p := range parents {
		ancestorSet[p] = true
		for a := range v.ancestors[p] {
			ancestorSet[a] = true
		}
	}
	v.ancestors[hash] = ancestorSet
	return hash
}

func TestSelectParentPicksHigherBlueScore(t *testing.T) {
	v := newMemoryView()
	genesis := v.addGenesis("genesis")
	k := chainspec.KType(18)

	a := v.addBlock(t, k, "a", genesis)
	b := v.addBlock(t, k, "b", genesis)
	_ = v.addBlock(t, k, "c", a, b) // a child does not change a's or b's own blue score

	got, err := ghostdag.SelectParent(v, []primitives.Hash{a, b})
	if err != nil {
		t.Fatalf("SelectParent: %v", err)
	}
	// a and b have equal blue score (both direct children of genesis), so
	// the tie is broken by lexicographically least hash.
	want := a
	if b.Less(a) {
		want = b
	}
	if got != want {
		t.Errorf("SelectParent = %s, want %s", got, want)
	}
}

func TestDiamondMergeIsAllBlue(t *testing.T) {
	v := newMemoryView()
	genesis := v.addGenesis("genesis")
	k := chainspec.KType(18)

	a := v.addBlock(t, k, "a", genesis)
	b := v.addBlock(t, k, "b", genesis)
	c := v.addBlock(t, k, "c", a, b)

	data := v.data[c]
	if data.SelectedParent != a && data.SelectedParent != b {
		t.Fatalf("selected parent %s is neither a nor b", data.SelectedParent)
	}
	if len(data.MergeSetReds) != 0 {
		t.Errorf("diamond merge within k should have zero reds, got %d", len(data.MergeSetReds))
	}
	if len(data.MergeSetBlues) != 2 {
		t.Errorf("diamond merge should classify both a and b blue, got %d blues", len(data.MergeSetBlues))
	}
	// selected parent's blue score (1) plus the two blues c adds.
	if data.BlueScore != 3 {
		t.Errorf("BlueScore = %d, want 3", data.BlueScore)
	}
}

func TestWideMergeBeyondKProducesReds(t *testing.T) {
	v := newMemoryView()
	genesis := v.addGenesis("genesis")
	k := chainspec.KType(2)

	// Five mutually-unrelated children of genesis, merged by one block.
	// With k=2 at most k+1=3 can be blue; the rest must be red.
	var siblings []primitives.Hash
	for _, label := range []string{"s1", "s2", "s3", "s4", "s5"} {
		siblings = append(siblings, v.addBlock(t, k, label, genesis))
	}

	merge := v.addBlock(t, k, "merge", siblings...)
	data := v.data[merge]

	if len(data.MergeSetBlues) > int(k)+1 {
		t.Errorf("blue set size %d exceeds k+1=%d", len(data.MergeSetBlues), k+1)
	}
	if len(data.MergeSetReds) == 0 {
		t.Errorf("expected at least one red block when merging %d siblings under k=%d", len(siblings), k)
	}
	if len(data.MergeSetBlues)+len(data.MergeSetReds) != len(siblings) {
		t.Errorf("blues(%d)+reds(%d) != siblings(%d)", len(data.MergeSetBlues), len(data.MergeSetReds), len(siblings))
	}
}

func TestBlueScoreAccumulatesAlongSelectedParentChain(t *testing.T) {
	v := newMemoryView()
	genesis := v.addGenesis("genesis")
	k := chainspec.KType(18)

	a := v.addBlock(t, k, "a", genesis)
	b := v.addBlock(t, k, "b", a)
	c := v.addBlock(t, k, "c", b)

	if v.data[a].BlueScore != 1 {
		t.Errorf("a.BlueScore = %d, want 1", v.data[a].BlueScore)
	}
	if v.data[b].BlueScore != 2 {
		t.Errorf("b.BlueScore = %d, want 2", v.data[b].BlueScore)
	}
	if v.data[c].BlueScore != 3 {
		t.Errorf("c.BlueScore = %d, want 3", v.data[c].BlueScore)
	}
}
