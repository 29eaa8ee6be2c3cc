package trie_test

import (
	"testing"

	"github.com/ghostkasd/ghostkasd/internal/kvstore"
	"github.com/ghostkasd/ghostkasd/internal/primitives"
	"github.com/ghostkasd/ghostkasd/internal/trie"
)

func openTrie(t *testing.T) (*trie.Trie, *kvstore.Store) {
	t.Helper()
	store, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	tr, err := trie.New(store, primitives.ZeroHash)
	if err != nil {
		t.Fatalf("trie.New: %v", err)
	}
	return tr, store
}

func TestTriePutVisibleBeforeCommit(t *testing.T) {
	tr, store := openTrie(t)
	defer store.Close()

	key := primitives.HashData([]byte("alice"))
	if err := tr.Put(key[:], []byte("account-bytes")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := tr.Get(key[:])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "account-bytes" {
		t.Fatalf("got %q, want %q", got, "account-bytes")
	}

	root, err := tr.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if root == primitives.ZeroHash {
		t.Fatalf("committed root is still zero hash")
	}
}

func TestTrieManyKeysRoundTrip(t *testing.T) {
	tr, store := openTrie(t)
	defer store.Close()

	entries := map[string]string{
		"alice":   "account-a",
		"bob":     "account-b",
		"charlie": "account-c",
		"dave":    "account-d",
		"eve":     "account-e",
	}

	for name, value := range entries {
		key := primitives.HashData([]byte(name))
		if err := tr.Put(key[:], []byte(value)); err != nil {
			t.Fatalf("Put(%s): %v", name, err)
		}
	}

	if _, err := tr.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	for name, value := range entries {
		key := primitives.HashData([]byte(name))
		got, err := tr.Get(key[:])
		if err != nil {
			t.Fatalf("Get(%s): %v", name, err)
		}
		if string(got) != value {
			t.Errorf("Get(%s) = %q, want %q", name, got, value)
		}
	}
}

func TestTrieSnapshotIsolatesWrites(t *testing.T) {
	tr, store := openTrie(t)
	defer store.Close()

	key := primitives.HashData([]byte("alice"))
	if err := tr.Put(key[:], []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	rootV1, err := tr.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := tr.Put(key[:], []byte("v2")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := tr.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	snapshot, err := tr.Snapshot(rootV1)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	got, err := snapshot.Get(key[:])
	if err != nil {
		t.Fatalf("snapshot.Get: %v", err)
	}
	if string(got) != "v1" {
		t.Errorf("snapshot at historical root returned %q, want %q (old roots must remain reachable)", got, "v1")
	}
}

func TestTrieGetMissingKeyReturnsNil(t *testing.T) {
	tr, store := openTrie(t)
	defer store.Close()

	key := primitives.HashData([]byte("nobody"))
	got, err := tr.Get(key[:])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("Get on missing key returned %q, want nil", got)
	}
}
