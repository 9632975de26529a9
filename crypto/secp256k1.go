package crypto

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// generateSecp256k1 is grounded on orbas1-Synnergy's core/compliance.go use
// of github.com/decred/dcrd/dcrec/secp256k1/v4 for issuer key parsing; here
// the same library generates and signs rather than only parsing.
func generateSecp256k1() (KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return KeyPair{}, fmt.Errorf("secp256k1 keygen: %w", err)
	}
	pub := priv.PubKey().SerializeCompressed()
	return KeyPair{
		Algorithm: Secp256k1,
		Public:    AccountKey{Algorithm: Secp256k1, Bytes: pub},
		Private:   priv.Serialize(),
	}, nil
}

func signSecp256k1(priv []byte, data []byte) ([]byte, error) {
	pk := secp256k1.PrivKeyFromBytes(priv)
	digest := HashBytes(data)
	sig := ecdsa.Sign(pk, digest)
	return sig.Serialize(), nil
}

func verifySecp256k1(pub, data, sig []byte) error {
	pk, err := secp256k1.ParsePubKey(pub)
	if err != nil {
		return fmt.Errorf("invalid secp256k1 pubkey: %w", err)
	}
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return fmt.Errorf("invalid secp256k1 signature: %w", err)
	}
	digest := HashBytes(data)
	if !parsed.Verify(digest, pk) {
		return fmt.Errorf("secp256k1 signature verification failed")
	}
	return nil
}
