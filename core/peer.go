package core

import "github.com/tolelom/irohad/crypto"

// Peer is (socket address, public key) — a member of the fixed peer set
// consensus rotates roles over (spec §3, §4.I).
type Peer struct {
	Address string
	Key     crypto.PublicKey
}

func NewPeer(address string, key crypto.PublicKey) Peer {
	return Peer{Address: address, Key: key}
}

func (p Peer) Equal(other Peer) bool {
	if p.Address != other.Address || len(p.Key) != len(other.Key) {
		return false
	}
	for i := range p.Key {
		if p.Key[i] != other.Key[i] {
			return false
		}
	}
	return true
}
