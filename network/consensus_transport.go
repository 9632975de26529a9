package network

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/tolelom/irohad/consensus"
	"github.com/tolelom/irohad/crypto"
)

// ConsensusTransport adapts a Node to consensus.Transport, letting Sumeragi
// broadcast and direct-message without importing network (network already
// depends on consensus for the wire message shape; the reverse import would
// cycle, so consensus only ever sees the Transport interface).
type ConsensusTransport struct {
	node *Node
}

// NewConsensusTransport wires node to dispatch incoming MsgConsensus frames
// to handle and returns a consensus.Transport that sends through node.
func NewConsensusTransport(node *Node, handle func(consensus.Message)) *ConsensusTransport {
	t := &ConsensusTransport{node: node}
	node.Handle(MsgConsensus, func(_ *Peer, msg Message) {
		var cm consensus.Message
		if err := json.Unmarshal(msg.Payload, &cm); err != nil {
			log.Printf("[network] unmarshal consensus message: %v", err)
			return
		}
		handle(cm)
	})
	return t
}

func (t *ConsensusTransport) Broadcast(msg consensus.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[network] marshal consensus message: %v", err)
		return
	}
	t.node.Broadcast(Message{Type: MsgConsensus, Payload: data})
}

func (t *ConsensusTransport) SendTo(peerKey crypto.PublicKey, msg consensus.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal consensus message: %w", err)
	}
	for _, p := range t.node.Peers() {
		if p.Identity.Hex() == peerKey.Hex() {
			return p.Send(Message{Type: MsgConsensus, Payload: data})
		}
	}
	return fmt.Errorf("no connected peer with key %s", peerKey.Hex())
}
