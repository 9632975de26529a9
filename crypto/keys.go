package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// PrivateKey wraps ed25519 private key bytes. This is the node's own
// long-term identity key (peer identity, block signing) and the default
// algorithm for newly registered accounts.
type PrivateKey []byte

// PublicKey wraps ed25519 public key bytes.
type PublicKey []byte

// GenerateKeyPair generates a new ed25519 key pair.
func GenerateKeyPair() (PrivateKey, PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return PrivateKey(priv), PublicKey(pub), nil
}

// Address returns a 40-char hex address derived from the public key.
// It takes the first 20 bytes of SHA-256(pubkey).
func (pub PublicKey) Address() string {
	h := HashBytes(pub)
	return hex.EncodeToString(h[:20])
}

// Hex returns the full hex-encoded public key.
func (pub PublicKey) Hex() string {
	return hex.EncodeToString(pub)
}

// Hex returns the hex-encoded private key.
func (priv PrivateKey) Hex() string {
	return hex.EncodeToString(priv)
}

// Public derives the ed25519 public key from the private key.
func (priv PrivateKey) Public() PublicKey {
	return PublicKey(ed25519.PrivateKey(priv).Public().(ed25519.PublicKey))
}

// PubKeyFromHex decodes a hex-encoded public key.
func PubKeyFromHex(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid pubkey hex: %w", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("pubkey must be %d bytes, got %d", ed25519.PublicKeySize, len(b))
	}
	return PublicKey(b), nil
}

// PrivKeyFromHex decodes a hex-encoded private key.
func PrivKeyFromHex(s string) (PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid privkey hex: %w", err)
	}
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("privkey must be %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}
	return PrivateKey(b), nil
}

// AccountKey is an algorithm-tagged public key, the unit an Account's
// signatory set and an AccountId are built from (spec §3: AccountId is
// (DomainId, PublicKey), but that PublicKey may be any supported scheme).
type AccountKey struct {
	Algorithm Algorithm
	Bytes     []byte
}

// String renders an AccountKey as "<algorithm>:<hex>", the canonical form
// used in AccountId text representations and log lines.
func (k AccountKey) String() string {
	return fmt.Sprintf("%s:%s", k.Algorithm, hex.EncodeToString(k.Bytes))
}

// Equal reports whether two account keys denote the same algorithm and bytes.
func (k AccountKey) Equal(other AccountKey) bool {
	if k.Algorithm != other.Algorithm || len(k.Bytes) != len(other.Bytes) {
		return false
	}
	for i := range k.Bytes {
		if k.Bytes[i] != other.Bytes[i] {
			return false
		}
	}
	return true
}

// KeyPair is an algorithm-tagged private/public key pair, produced by
// GenerateKeyPairAlgorithm for any of the supported signature schemes.
type KeyPair struct {
	Algorithm Algorithm
	Public    AccountKey
	Private   []byte
}

// GenerateKeyPairAlgorithm generates a key pair under the given algorithm.
// Ed25519 dispatches to the node's own ed25519 generator; the others
// dispatch to the dedicated algorithm files (secp256k1.go, bls.go).
func GenerateKeyPairAlgorithm(alg Algorithm) (KeyPair, error) {
	switch alg {
	case Ed25519:
		priv, pub, err := GenerateKeyPair()
		if err != nil {
			return KeyPair{}, err
		}
		return KeyPair{
			Algorithm: Ed25519,
			Public:    AccountKey{Algorithm: Ed25519, Bytes: []byte(pub)},
			Private:   []byte(priv),
		}, nil
	case Secp256k1:
		return generateSecp256k1()
	case BLSNormal, BLSSmall:
		return generateBLS(alg)
	default:
		return KeyPair{}, fmt.Errorf("unsupported algorithm %s", alg)
	}
}
