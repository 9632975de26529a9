package storage

import (
	"bytes"
	"errors"
	"testing"

	"github.com/tolelom/irohad/core"
)

// TestLevelDBGetSetDelete exercises the basic DB contract against a real
// on-disk goleveldb database.
func TestLevelDBGetSetDelete(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	if err != nil {
		t.Fatalf("NewLevelDB: %v", err)
	}
	defer db.Close()

	if _, err := db.Get([]byte("missing")); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get missing key: got %v want core.ErrNotFound", err)
	}

	if err := db.Set([]byte("key"), []byte("value")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := db.Get([]byte("key"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte("value")) {
		t.Errorf("Get: got %q want %q", got, "value")
	}

	if err := db.Delete([]byte("key")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := db.Get([]byte("key")); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get after delete: got %v want core.ErrNotFound", err)
	}
}

// TestLevelDBNewIteratorWalksPrefixedKeysOnly verifies the iterator only
// surfaces keys under the requested prefix.
func TestLevelDBNewIteratorWalksPrefixedKeysOnly(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := db.Set([]byte("idx:a"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := db.Set([]byte("idx:b"), []byte("2")); err != nil {
		t.Fatal(err)
	}
	if err := db.Set([]byte("other:c"), []byte("3")); err != nil {
		t.Fatal(err)
	}

	it := db.NewIterator([]byte("idx:"))
	defer it.Release()
	count := 0
	for it.Next() {
		if !bytes.HasPrefix(it.Key(), []byte("idx:")) {
			t.Errorf("iterator returned a key outside the prefix: %q", it.Key())
		}
		count++
	}
	if err := it.Error(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}
	if count != 2 {
		t.Errorf("iterated %d keys, want 2", count)
	}
}

// TestLevelDBBatchWriteIsAtomic verifies a batch's operations all apply
// together on Write, and Reset drops unwritten operations.
func TestLevelDBBatchWriteIsAtomic(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	batch := db.NewBatch()
	batch.Set([]byte("a"), []byte("1"))
	batch.Set([]byte("b"), []byte("2"))
	batch.Reset()
	batch.Set([]byte("c"), []byte("3"))
	if err := batch.Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, err := db.Get([]byte("a")); !errors.Is(err, core.ErrNotFound) {
		t.Error("a reset batch should not apply operations queued before the reset")
	}
	got, err := db.Get([]byte("c"))
	if err != nil || !bytes.Equal(got, []byte("3")) {
		t.Errorf("Get(c): got %q, %v", got, err)
	}
}
