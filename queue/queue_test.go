package queue

import (
	"testing"

	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/crypto"
)

func newSignedTx(t *testing.T, chainId string, ttlMs, createdAtMs int64) *core.Transaction {
	t.Helper()
	domain, err := core.NewDomainId("wonderland")
	if err != nil {
		t.Fatal(err)
	}
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	key := crypto.AccountKey{Algorithm: crypto.Ed25519, Bytes: []byte(pub)}
	authority := core.NewAccountId(domain, key)

	tx := core.NewTransaction(chainId, authority, nil, ttlMs)
	tx.CreatedAtMs = createdAtMs
	if err := tx.AddSignature(crypto.Ed25519, key, priv); err != nil {
		t.Fatal(err)
	}
	return tx
}

// TestQueueAddAndDrain verifies a freshly admitted transaction is returned
// by Drain and removed from the queue.
func TestQueueAddAndDrain(t *testing.T) {
	q := New(10, 10)
	tx := newSignedTx(t, "test-chain", 60_000, 1000)
	if err := q.Add(tx, 1000); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if q.Size() != 1 {
		t.Errorf("Size: got %d want 1", q.Size())
	}
	drained := q.Drain(10, 1000)
	if len(drained) != 1 {
		t.Fatalf("Drain: got %d txs want 1", len(drained))
	}
	if q.Size() != 0 {
		t.Errorf("Size after drain: got %d want 0", q.Size())
	}
}

// TestQueueRejectsDuplicate ensures the same transaction cannot be queued
// twice concurrently.
func TestQueueRejectsDuplicate(t *testing.T) {
	q := New(10, 10)
	tx := newSignedTx(t, "test-chain", 60_000, 1000)
	if err := q.Add(tx, 1000); err != nil {
		t.Fatal(err)
	}
	if err := q.Add(tx, 1000); err == nil {
		t.Error("adding the same transaction twice should fail")
	}
}

// TestQueueRejectsExpired verifies the strict boundary: a transaction at or
// past creation+TTL is rejected on admission.
func TestQueueRejectsExpired(t *testing.T) {
	q := New(10, 10)
	tx := newSignedTx(t, "test-chain", 1000, 0)
	if err := q.Add(tx, 1000); err == nil {
		t.Error("a transaction at exactly creation+TTL should be rejected on Add")
	}
}

// TestQueueRejectsFutureTimestamp verifies transactions too far ahead of the
// queue's clock are rejected.
func TestQueueRejectsFutureTimestamp(t *testing.T) {
	q := New(10, 10)
	tx := newSignedTx(t, "test-chain", 60_000, DefaultFutureThresholdMs+10_000)
	if err := q.Add(tx, 0); err == nil {
		t.Error("a transaction far in the future should be rejected")
	}
}

// TestQueueRejectsUnsigned ensures a transaction with no valid signature is
// never admitted.
func TestQueueRejectsUnsigned(t *testing.T) {
	q := New(10, 10)
	domain, _ := core.NewDomainId("wonderland")
	_, pub, _ := crypto.GenerateKeyPair()
	key := crypto.AccountKey{Algorithm: crypto.Ed25519, Bytes: []byte(pub)}
	authority := core.NewAccountId(domain, key)
	tx := core.NewTransaction("test-chain", authority, nil, 60_000)
	if err := q.Add(tx, 0); err == nil {
		t.Error("an unsigned transaction should be rejected")
	}
}

// TestQueueSignerCapacity enforces the per-signer backlog bound
// independently of the global capacity.
func TestQueueSignerCapacity(t *testing.T) {
	q := New(100, 1)
	domain, _ := core.NewDomainId("wonderland")
	priv, pub, _ := crypto.GenerateKeyPair()
	key := crypto.AccountKey{Algorithm: crypto.Ed25519, Bytes: []byte(pub)}
	authority := core.NewAccountId(domain, key)

	tx1 := core.NewTransaction("test-chain", authority, nil, 60_000)
	tx1.CreatedAtMs = 1000
	if err := tx1.AddSignature(crypto.Ed25519, key, priv); err != nil {
		t.Fatal(err)
	}
	if err := q.Add(tx1, 1000); err != nil {
		t.Fatal(err)
	}

	tx2 := core.NewTransaction("test-chain", authority, nil, 60_000)
	tx2.CreatedAtMs = 1001
	tx2.Nonce = new(uint64)
	*tx2.Nonce = 1
	if err := tx2.AddSignature(crypto.Ed25519, key, priv); err != nil {
		t.Fatal(err)
	}
	if err := q.Add(tx2, 1000); err == nil {
		t.Error("a second transaction from the same signer should hit the per-signer cap")
	}
}

// TestQueueDrainRoundRobinsAcrossSigners checks that Drain alternates
// between signers rather than fully draining one before the next.
func TestQueueDrainRoundRobinsAcrossSigners(t *testing.T) {
	q := New(10, 10)
	domain, _ := core.NewDomainId("wonderland")
	priv, pub, _ := crypto.GenerateKeyPair()
	key := crypto.AccountKey{Algorithm: crypto.Ed25519, Bytes: []byte(pub)}
	authority := core.NewAccountId(domain, key)

	txA1 := core.NewTransaction("test-chain", authority, nil, 60_000)
	txA1.CreatedAtMs = 1000
	txA2 := core.NewTransaction("test-chain", authority, nil, 60_000)
	txA2.CreatedAtMs = 1001
	txA2.Nonce = new(uint64)
	*txA2.Nonce = 1
	for _, tx := range []*core.Transaction{txA1, txA2} {
		if err := tx.AddSignature(crypto.Ed25519, key, priv); err != nil {
			t.Fatal(err)
		}
	}
	txB1 := newSignedTx(t, "test-chain", 60_000, 1000)

	for _, tx := range []*core.Transaction{txA1, txA2, txB1} {
		if err := q.Add(tx, 1000); err != nil {
			t.Fatal(err)
		}
	}
	drained := q.Drain(3, 1000)
	if len(drained) != 3 {
		t.Fatalf("Drain: got %d txs want 3", len(drained))
	}
	if drained[0] != txA1 || drained[1] != txB1 || drained[2] != txA2 {
		t.Error("Drain should take signer A's first tx, then signer B's, then A's second")
	}
}

// TestQueueDrainDropsExpired verifies Drain silently drops expired entries
// instead of returning them.
func TestQueueDrainDropsExpired(t *testing.T) {
	q := New(10, 10)
	tx := newSignedTx(t, "test-chain", 500, 0)
	if err := q.Add(tx, 0); err != nil {
		t.Fatal(err)
	}
	drained := q.Drain(10, 10_000)
	if len(drained) != 0 {
		t.Errorf("Drain should silently drop an expired transaction, got %d", len(drained))
	}
	if q.Size() != 0 {
		t.Errorf("Size after draining an expired tx: got %d want 0", q.Size())
	}
}

// TestQueueMarkCommittedBlocksReplay verifies MarkCommitted's replay window
// rejects a resubmission within TTL.
func TestQueueMarkCommittedBlocksReplay(t *testing.T) {
	q := New(10, 10)
	tx := newSignedTx(t, "test-chain", 60_000, 1000)
	hash, err := tx.Hash()
	if err != nil {
		t.Fatal(err)
	}
	q.MarkCommitted(hash, 1000, tx.TTLMs)

	if err := q.Add(tx, 1000); err == nil {
		t.Error("resubmitting a committed transaction within its TTL window should fail")
	}
}
