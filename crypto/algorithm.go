package crypto

import "fmt"

// Algorithm identifies a signature scheme supported by an account's
// signatories. Ed25519 is the node's own long-term identity scheme and the
// default for newly registered accounts; Secp256k1 and the two BLS variants
// exist so that accounts migrating keys from other chains can be recognised
// without re-keying.
type Algorithm byte

const (
	Ed25519 Algorithm = iota
	Secp256k1
	BLSNormal
	BLSSmall
)

func (a Algorithm) String() string {
	switch a {
	case Ed25519:
		return "ed25519"
	case Secp256k1:
		return "secp256k1"
	case BLSNormal:
		return "bls_normal"
	case BLSSmall:
		return "bls_small"
	default:
		return fmt.Sprintf("algorithm(%d)", byte(a))
	}
}

// ParseAlgorithm maps a config/wire string to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "ed25519", "":
		return Ed25519, nil
	case "secp256k1":
		return Secp256k1, nil
	case "bls_normal":
		return BLSNormal, nil
	case "bls_small":
		return BLSSmall, nil
	default:
		return 0, fmt.Errorf("unknown signature algorithm %q", s)
	}
}
