// Package wallet provides key management and transaction-building helpers
// for a client holding one account's signing key.
package wallet

import (
	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/crypto"
)

// Wallet holds a key pair and provides transaction-building helpers for one
// account identity.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key.
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// Address returns the short human-readable address (first 20 bytes of SHA-256(pubkey)).
func (w *Wallet) Address() string {
	return w.pub.Address()
}

// AccountId returns the AccountId this wallet signs as within domain.
func (w *Wallet) AccountId(domain core.DomainId) core.AccountId {
	return core.NewAccountId(domain, crypto.AccountKey{Algorithm: crypto.Ed25519, Bytes: w.pub})
}

// NewTransaction builds and signs a transaction carrying instructions, as
// this wallet's account within domain.
func (w *Wallet) NewTransaction(chainId string, domain core.DomainId, instructions []core.Instruction, ttlMs int64) (*core.Transaction, error) {
	tx := core.NewTransaction(chainId, w.AccountId(domain), instructions, ttlMs)
	key := crypto.AccountKey{Algorithm: crypto.Ed25519, Bytes: w.pub}
	if err := tx.AddSignature(crypto.Ed25519, key, w.priv); err != nil {
		return nil, err
	}
	return tx, nil
}
