package kvstore_test

import (
	"testing"

	"github.com/ghostkasd/ghostkasd/internal/kvstore"
)

func TestStorePutGetAcrossColumnFamilies(t *testing.T) {
	store, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	blockKey := kvstore.NewKey(kvstore.CFBlocks, []byte("block-1"))
	accountKey := kvstore.NewKey(kvstore.CFAccountsIndex, []byte("block-1"))

	if err := store.Put(blockKey, []byte("block-bytes")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := store.Get(accountKey); err != kvstore.ErrNotFound {
		t.Fatalf("same raw key in a different column family leaked: got %v, want ErrNotFound", err)
	}

	value, err := store.Get(blockKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(value) != "block-bytes" {
		t.Errorf("got %q, want %q", value, "block-bytes")
	}
}

func TestBatchCommitIsAtomicAcrossColumnFamilies(t *testing.T) {
	store, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	batch := store.OpenBatch()
	blockKey := kvstore.NewKey(kvstore.CFBlocks, []byte("b"))
	tipKey := kvstore.NewKey(kvstore.CFTipSet, []byte("b"))

	if err := batch.Put(blockKey, []byte("block")); err != nil {
		t.Fatalf("batch.Put: %v", err)
	}
	if err := batch.Put(tipKey, []byte("tip")); err != nil {
		t.Fatalf("batch.Put: %v", err)
	}

	if _, err := store.Get(blockKey); err != kvstore.ErrNotFound {
		t.Fatalf("uncommitted batch write visible before Commit")
	}

	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := store.Get(blockKey); err != nil {
		t.Fatalf("Get after commit: %v", err)
	}
	if _, err := store.Get(tipKey); err != nil {
		t.Fatalf("Get after commit: %v", err)
	}
}

func TestLockSentinelPreventsConcurrentOpen(t *testing.T) {
	dir := t.TempDir()
	store, err := kvstore.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if _, err := kvstore.Open(dir); err == nil {
		t.Fatalf("expected second Open of the same directory to fail")
	}
}

func TestIteratePrefix(t *testing.T) {
	store, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	for _, k := range []string{"acct-1", "acct-2", "acct-3"} {
		if err := store.Put(kvstore.NewKey(kvstore.CFAccountsIndex, []byte(k)), []byte(k)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if err := store.Put(kvstore.NewKey(kvstore.CFBlocks, []byte("acct-1")), []byte("unrelated")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var got []string
	err = store.IteratePrefix(kvstore.CFAccountsIndex, []byte("acct-"), func(e kvstore.Entry) bool {
		got = append(got, string(e.Key))
		return true
	})
	if err != nil {
		t.Fatalf("IteratePrefix: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3: %v", len(got), got)
	}
}
