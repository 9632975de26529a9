package core

import (
	"testing"

	"github.com/tolelom/irohad/crypto"
)

func newTestAccount(t *testing.T) (AccountId, crypto.PrivateKey, crypto.AccountKey) {
	t.Helper()
	domain, err := NewDomainId("wonderland")
	if err != nil {
		t.Fatal(err)
	}
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	key := crypto.AccountKey{Algorithm: crypto.Ed25519, Bytes: []byte(pub)}
	return NewAccountId(domain, key), priv, key
}

// TestTransactionSignVerify ensures signing and verification round-trip, and
// catches tampering with a signed field.
func TestTransactionSignVerify(t *testing.T) {
	authority, priv, key := newTestAccount(t)
	tx := NewTransaction("test-chain", authority, nil, 60_000)
	if err := tx.AddSignature(crypto.Ed25519, key, priv); err != nil {
		t.Fatalf("AddSignature: %v", err)
	}
	if err := tx.VerifySignatures(); err != nil {
		t.Errorf("VerifySignatures: %v", err)
	}

	tx.TTLMs = 999
	if err := tx.VerifySignatures(); err == nil {
		t.Error("tampered transaction should fail verification")
	}
}

// TestTransactionVerifyNoSignatures rejects an unsigned transaction.
func TestTransactionVerifyNoSignatures(t *testing.T) {
	authority, _, _ := newTestAccount(t)
	tx := NewTransaction("test-chain", authority, nil, 60_000)
	if err := tx.VerifySignatures(); err == nil {
		t.Error("transaction with no signatures should fail verification")
	}
}

// TestTransactionHashDeterministic ensures Hash is stable across calls and
// changes when the payload changes.
func TestTransactionHashDeterministic(t *testing.T) {
	authority, _, _ := newTestAccount(t)
	tx := NewTransaction("test-chain", authority, nil, 60_000)
	h1, err := tx.Hash()
	if err != nil {
		t.Fatal(err)
	}
	h2, err := tx.Hash()
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Error("Hash() should be deterministic for an unchanged transaction")
	}

	tx.Nonce = new(uint64)
	*tx.Nonce = 1
	h3, err := tx.Hash()
	if err != nil {
		t.Fatal(err)
	}
	if h3 == h1 {
		t.Error("changing the nonce should change the hash")
	}
}

// TestTransactionExpiry checks the strict-inequality boundary spec §8 names.
func TestTransactionExpiry(t *testing.T) {
	authority, _, _ := newTestAccount(t)
	tx := NewTransaction("test-chain", authority, nil, 1000)
	tx.CreatedAtMs = 0
	if !tx.IsExpired(1000) {
		t.Error("transaction at exactly creation+TTL should be expired")
	}
	if tx.IsExpired(999) {
		t.Error("transaction before creation+TTL should not be expired")
	}
}

// TestTransactionQuorumMet verifies quorum counting only counts signatures
// from the named signatory set.
func TestTransactionQuorumMet(t *testing.T) {
	authority, priv1, key1 := newTestAccount(t)
	_, priv2, key2 := newTestAccount(t)
	_, _, key3 := newTestAccount(t)

	tx := NewTransaction("test-chain", authority, nil, 60_000)
	if err := tx.AddSignature(crypto.Ed25519, key1, priv1); err != nil {
		t.Fatal(err)
	}
	if err := tx.AddSignature(crypto.Ed25519, key2, priv2); err != nil {
		t.Fatal(err)
	}

	if !tx.QuorumMet([]crypto.AccountKey{key1, key2}, 2) {
		t.Error("two matching signatures should meet a quorum of 2")
	}
	if tx.QuorumMet([]crypto.AccountKey{key1, key3}, 2) {
		t.Error("only one of two named signatories signed; quorum should not be met")
	}
}
