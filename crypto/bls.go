package crypto

import (
	"fmt"
	"sync"

	"github.com/herumi/bls-eth-go-binary/bls"
)

// blsInit is grounded on orbas1-Synnergy's core/security.go and
// core/sidechains.go, both of which call bls.Init(bls.BLS12_381) once
// before touching any bls.SecretKey/PublicKey value.
var blsInit sync.Once
var blsInitErr error

func ensureBLSInit() error {
	blsInit.Do(func() {
		blsInitErr = bls.Init(bls.BLS12_381)
		if blsInitErr == nil {
			blsInitErr = bls.SetETHmode(bls.EthModeDraft07)
		}
	})
	return blsInitErr
}

// generateBLS produces a BLS12-381 key pair. BLSNormal and BLSSmall differ
// only in the Algorithm tag recorded on the key: both use the same curve
// and the same key and signature serialisation, so keys of either tag
// sign and verify identically.
func generateBLS(alg Algorithm) (KeyPair, error) {
	if err := ensureBLSInit(); err != nil {
		return KeyPair{}, fmt.Errorf("bls init: %w", err)
	}
	var sk bls.SecretKey
	sk.SetByCSPRNG()
	pub := sk.GetPublicKey()
	return KeyPair{
		Algorithm: alg,
		Public:    AccountKey{Algorithm: alg, Bytes: pub.Serialize()},
		Private:   sk.Serialize(),
	}, nil
}

func signBLS(priv, data []byte) ([]byte, error) {
	if err := ensureBLSInit(); err != nil {
		return nil, err
	}
	var sk bls.SecretKey
	if err := sk.Deserialize(priv); err != nil {
		return nil, fmt.Errorf("invalid bls private key: %w", err)
	}
	sig := sk.SignByte(data)
	return sig.Serialize(), nil
}

func verifyBLS(pub, data, sig []byte) error {
	if err := ensureBLSInit(); err != nil {
		return err
	}
	var pk bls.PublicKey
	if err := pk.Deserialize(pub); err != nil {
		return fmt.Errorf("invalid bls public key: %w", err)
	}
	var s bls.Sign
	if err := s.Deserialize(sig); err != nil {
		return fmt.Errorf("invalid bls signature: %w", err)
	}
	if !s.VerifyByte(&pk, data) {
		return fmt.Errorf("bls signature verification failed")
	}
	return nil
}

// AggregateBLS combines per-peer BLS signatures into a single aggregate,
// grounded on orbas1-Synnergy's core/sidechains.go peer-signature
// aggregation pattern. Consensus does not call it: a BlockCommitted
// message carries the individual signatures.
func AggregateBLS(sigs [][]byte) ([]byte, error) {
	if err := ensureBLSInit(); err != nil {
		return nil, err
	}
	if len(sigs) == 0 {
		return nil, fmt.Errorf("no signatures to aggregate")
	}
	var agg bls.Sign
	for i, raw := range sigs {
		var s bls.Sign
		if err := s.Deserialize(raw); err != nil {
			return nil, fmt.Errorf("invalid bls signature at index %d: %w", i, err)
		}
		if i == 0 {
			agg = s
		} else {
			agg.Add(&s)
		}
	}
	return agg.Serialize(), nil
}
