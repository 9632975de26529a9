// Package consensus implements Sumeragi, the role-rotating BFT consensus
// engine spec §4.I describes. It replaces the teacher's round-robin
// consensus/poa.go, keeping its Run(done) outer loop (without the ticker
// interval) and New(...) constructor shape, but ordering peers into
// leader/proxy_tail/validating/observing roles per height and view rather
// than a single fixed proposer.
package consensus

import (
	"log"
	"sync"
	"time"

	"github.com/tolelom/irohad/blockpipeline"
	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/crypto"
	"github.com/tolelom/irohad/events"
)

// MessageKind tags a consensus wire message (spec §4.I).
type MessageKind byte

const (
	MsgBlockCreated MessageKind = iota
	MsgBlockSigned
	MsgBlockCommitted
	MsgBlockSyncUpdate
	MsgControlFlow
)

// Message is the envelope exchanged between peers during a consensus round.
type Message struct {
	Kind      MessageKind
	Height    uint64
	View      uint32
	Block     *core.Block
	Signature *core.BlockSignature
}

// Transport is the minimal network surface Sumeragi needs. network.Node is
// adapted to satisfy it (network/consensus_transport.go) so this package
// never imports network directly: network imports consensus for that
// adapter, so importing network here would create an import cycle.
type Transport interface {
	Broadcast(msg Message)
	SendTo(peerKey crypto.PublicKey, msg Message) error
}

// RoleSet is one height/view's role assignment over the ordered peer list
// (spec §4.I): leader proposes, proxy_tail collects signatures, validating
// peers countersign, observing peers only watch.
type RoleSet struct {
	Leader     core.Peer
	ProxyTail  core.Peer
	Validating []core.Peer
	Observing  []core.Peer
}

// ComputeRoles assigns roles for height/view over peers, which must
// already be in the canonical sorted order wsv.WSV.PeerSet() returns
// (spec §4.I): leader = P[(h+v) mod n], proxy_tail = P[(h+v+1) mod n],
// validating = {P[(h+v+k) mod n] : 2<=k<=2f}, observing = remainder.
func ComputeRoles(peers []core.Peer, height uint64, view uint32) RoleSet {
	n := len(peers)
	if n == 0 {
		return RoleSet{}
	}
	f := (n - 1) / 3
	idx := func(k uint64) int {
		return int((height + uint64(view) + k) % uint64(n))
	}

	roles := RoleSet{Leader: peers[idx(0)]}
	assigned := map[int]bool{idx(0): true}
	if n > 1 {
		roles.ProxyTail = peers[idx(1)]
		assigned[idx(1)] = true
	}
	for k := uint64(2); k <= uint64(2*f); k++ {
		i := idx(k)
		if assigned[i] {
			continue
		}
		assigned[i] = true
		roles.Validating = append(roles.Validating, peers[i])
	}
	for i, p := range peers {
		if !assigned[i] {
			roles.Observing = append(roles.Observing, p)
		}
	}
	return roles
}

// Sumeragi is the consensus engine for one peer: it rotates roles over the
// live peer set, drives the leader/proxy-tail/validator round described
// above, and falls back to a view change when the current view's timer
// expires without a commit.
type Sumeragi struct {
	pipeline  *blockpipeline.Pipeline
	transport Transport
	emitter   *events.Emitter
	privKey   crypto.PrivateKey
	pubKey    crypto.PublicKey

	viewChangeBase time.Duration
	maxBlockTxs    int

	mu        sync.Mutex
	view      uint32
	candidate *blockpipeline.Candidate
	votes     map[string]core.BlockSignature // proxy_tail's collected signatures, keyed by signer hex
	voteHash  string                          // block hash the collected votes are for
	viewTimer *time.Timer
}

// New constructs a Sumeragi engine. viewChangeBase is the base timeout
// pipelineTime scales by 2^view; maxBlockTxs bounds how many transactions
// CreateCandidate drains per round (0 defaults to 500, matching the
// teacher's poa.go MaxBlockTxs default).
func New(pipeline *blockpipeline.Pipeline, transport Transport, emitter *events.Emitter, priv crypto.PrivateKey, viewChangeBase time.Duration, maxBlockTxs int) *Sumeragi {
	if maxBlockTxs <= 0 {
		maxBlockTxs = 500
	}
	if viewChangeBase <= 0 {
		viewChangeBase = 2 * time.Second
	}
	return &Sumeragi{
		pipeline:       pipeline,
		transport:      transport,
		emitter:        emitter,
		privKey:        priv,
		pubKey:         priv.Public(),
		viewChangeBase: viewChangeBase,
		maxBlockTxs:    maxBlockTxs,
		votes:          make(map[string]core.BlockSignature),
	}
}

// Roles returns the role assignment for the next height at the current
// view.
func (s *Sumeragi) Roles() RoleSet {
	s.mu.Lock()
	view := s.view
	s.mu.Unlock()
	peers := s.pipeline.WSV.PeerSet()
	height := s.pipeline.WSV.Height() + 1
	return ComputeRoles(peers, height, view)
}

func samePeer(p core.Peer, key crypto.PublicKey) bool {
	return p.Key.Hex() == key.Hex()
}

// StartRound begins a consensus round at the current height/view: if this
// peer is the leader it creates, signs, and broadcasts a candidate; every
// other peer arms its view-change timer and waits for BlockCreated.
func (s *Sumeragi) StartRound() {
	roles := s.Roles()
	s.armViewTimer()

	if !samePeer(roles.Leader, s.pubKey) {
		return
	}

	cand, err := s.pipeline.CreateCandidate(s.currentView(), s.maxBlockTxs, blockpipeline.NowMs())
	if err != nil {
		log.Printf("[consensus] create candidate: %v", err)
		return
	}
	if err := blockpipeline.Sign(cand.Block, s.privKey, s.pubKey); err != nil {
		log.Printf("[consensus] sign candidate: %v", err)
		return
	}

	s.mu.Lock()
	s.candidate = cand
	s.mu.Unlock()

	s.transport.Broadcast(Message{Kind: MsgBlockCreated, Height: cand.Block.Header.Height, View: s.currentView(), Block: cand.Block})
}

func (s *Sumeragi) currentView() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// HandleMessage dispatches an incoming consensus message.
func (s *Sumeragi) HandleMessage(msg Message) {
	switch msg.Kind {
	case MsgBlockCreated:
		s.onBlockCreated(msg)
	case MsgBlockSigned:
		s.onBlockSigned(msg)
	case MsgBlockCommitted:
		s.onBlockCommitted(msg)
	case MsgControlFlow:
		s.onControlFlow(msg)
	case MsgBlockSyncUpdate:
		s.onBlockCommitted(msg) // a sync update carries an already-committed block
	}
}

// onBlockCreated runs when a validating peer or the proxy tail receives
// the leader's proposal: validate it against the current WSV, countersign,
// and forward the signature to the proxy tail.
func (s *Sumeragi) onBlockCreated(msg Message) {
	roles := s.Roles()
	isValidator := samePeer(roles.ProxyTail, s.pubKey)
	if !isValidator {
		for _, v := range roles.Validating {
			if samePeer(v, s.pubKey) {
				isValidator = true
				break
			}
		}
	}
	if !isValidator {
		return
	}

	bc, err := s.pipeline.ValidateCandidate(msg.Block)
	if err != nil {
		log.Printf("[consensus] reject candidate at height %d: %v", msg.Height, err)
		return
	}
	bc.Discard() // re-validated again at commit time against the live WSV

	signed := *msg.Block
	if err := blockpipeline.Sign(&signed, s.privKey, s.pubKey); err != nil {
		log.Printf("[consensus] sign candidate: %v", err)
		return
	}
	sig := signed.Signatures[len(signed.Signatures)-1]

	if samePeer(roles.ProxyTail, s.pubKey) {
		s.collectVote(msg, sig)
		return
	}
	if err := s.transport.SendTo(roles.ProxyTail.Key, Message{Kind: MsgBlockSigned, Height: msg.Height, View: msg.View, Block: msg.Block, Signature: &sig}); err != nil {
		log.Printf("[consensus] send signature to proxy tail: %v", err)
	}
}

// onBlockSigned runs on the proxy tail: accumulate signatures until the
// commit threshold is met, then assemble and broadcast the committed
// block.
func (s *Sumeragi) onBlockSigned(msg Message) {
	if msg.Signature == nil {
		return
	}
	s.collectVote(msg, *msg.Signature)
}

func (s *Sumeragi) collectVote(msg Message, sig core.BlockSignature) {
	hash, err := msg.Block.ComputeHash()
	if err != nil {
		log.Printf("[consensus] hash candidate: %v", err)
		return
	}

	s.mu.Lock()
	if s.voteHash != hash {
		s.votes = make(map[string]core.BlockSignature)
		s.voteHash = hash
	}
	s.votes[sig.PeerKey.Hex()] = sig
	n := len(s.pipeline.WSV.PeerSet())
	threshold := core.CommittedThreshold(n)
	ready := len(s.votes) >= threshold
	var final *core.Block
	if ready {
		final = &core.Block{Header: msg.Block.Header, Transactions: msg.Block.Transactions, Events: msg.Block.Events}
		for _, v := range s.votes {
			final.Signatures = append(final.Signatures, v)
		}
	}
	s.mu.Unlock()

	if ready {
		s.transport.Broadcast(Message{Kind: MsgBlockCommitted, Height: final.Header.Height, View: msg.View, Block: final})
	}
}

// onBlockCommitted runs on every peer once the proxy tail (or a
// block-sync update) delivers a fully signed block: verify the signature
// threshold and commit it to the local WSV and chain.
func (s *Sumeragi) onBlockCommitted(msg Message) {
	block := msg.Block
	n := len(s.pipeline.WSV.PeerSet())
	if !block.IsCommitted(n) {
		log.Printf("[consensus] committed block at height %d carries too few signatures", msg.Height)
		return
	}
	if err := block.VerifySignatures(); err != nil {
		log.Printf("[consensus] committed block signature check failed: %v", err)
		return
	}
	if block.Header.Height != s.pipeline.WSV.Height()+1 {
		return // already committed, or a future height delivered out of order (block-sync handles the gap)
	}

	bc, err := s.pipeline.ValidateCandidate(block)
	if err != nil {
		log.Printf("[consensus] committed block failed replay: %v", err)
		return
	}
	if err := s.pipeline.Commit(block, bc, blockpipeline.NowMs()); err != nil {
		log.Printf("[consensus] commit block: %v", err)
		return
	}

	s.emitter.EmitAll(bc.Journal())
	s.emitter.Emit(core.Event{Kind: core.EventPipeline, Status: core.StatusBlockCommitted, BlockHeight: block.Header.Height, Timestamp: blockpipeline.NowMs()})

	s.mu.Lock()
	s.view = 0
	s.candidate = nil
	s.votes = make(map[string]core.BlockSignature)
	s.voteHash = ""
	s.mu.Unlock()

	s.stopViewTimer()
	s.StartRound()
}

// Run starts the consensus loop: it begins the first round immediately and
// re-arms itself after every commit or view change. Generalises the
// teacher's ticker-driven Run(interval, done) into Run(done) with no
// interval: "propose every interval if proposer" becomes "start a round,
// then react to messages and view timers", since Sumeragi's cadence is
// event-driven rather than fixed-tick.
func (s *Sumeragi) Run(done <-chan struct{}) {
	s.StartRound()
	<-done
	s.stopViewTimer()
}
