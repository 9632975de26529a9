package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
)

// Sign signs data with the private key and returns a hex-encoded signature.
// This is the node's default (ed25519) signer, used for peer identity and
// block signatures; account signatories that chose another algorithm use
// SignAlgorithm instead.
func Sign(priv PrivateKey, data []byte) string {
	sig := ed25519.Sign(ed25519.PrivateKey(priv), data)
	return hex.EncodeToString(sig)
}

// Verify checks a hex-encoded signature against data using the public key.
func Verify(pub PublicKey, data []byte, sigHex string) error {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("invalid signature hex: %w", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), data, sig) {
		return errors.New("signature verification failed")
	}
	return nil
}

// SignAlgorithm signs data with an algorithm-tagged private key, dispatching
// to the scheme named by alg.
func SignAlgorithm(alg Algorithm, priv []byte, data []byte) ([]byte, error) {
	switch alg {
	case Ed25519:
		if len(priv) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("ed25519 private key must be %d bytes", ed25519.PrivateKeySize)
		}
		return ed25519.Sign(ed25519.PrivateKey(priv), data), nil
	case Secp256k1:
		return signSecp256k1(priv, data)
	case BLSNormal, BLSSmall:
		return signBLS(priv, data)
	default:
		return nil, fmt.Errorf("unsupported algorithm %s", alg)
	}
}

// VerifyAlgorithm verifies an algorithm-tagged signature.
func VerifyAlgorithm(key AccountKey, data []byte, sig []byte) error {
	switch key.Algorithm {
	case Ed25519:
		if len(key.Bytes) != ed25519.PublicKeySize {
			return fmt.Errorf("ed25519 public key must be %d bytes", ed25519.PublicKeySize)
		}
		if !ed25519.Verify(ed25519.PublicKey(key.Bytes), data, sig) {
			return errors.New("ed25519 signature verification failed")
		}
		return nil
	case Secp256k1:
		return verifySecp256k1(key.Bytes, data, sig)
	case BLSNormal, BLSSmall:
		return verifyBLS(key.Bytes, data, sig)
	default:
		return fmt.Errorf("unsupported algorithm %s", key.Algorithm)
	}
}
