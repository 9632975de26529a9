package blockpipeline

import (
	"testing"

	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/crypto"
	"github.com/tolelom/irohad/executor"
	"github.com/tolelom/irohad/executor/builtin"
	"github.com/tolelom/irohad/internal/testutil"
	"github.com/tolelom/irohad/queue"
	"github.com/tolelom/irohad/wsv"
)

// newGenesisFixture builds a WSV and Blockchain both sitting at height 0,
// with one registered domain/account, mirroring what config.InitGenesis
// leaves behind before the first CreateCandidate call.
func newGenesisFixture(t *testing.T) (*wsv.WSV, *core.Blockchain, core.AccountId, crypto.PrivateKey) {
	t.Helper()
	w := wsv.New()
	bc, err := wsv.Begin(w)
	if err != nil {
		t.Fatal(err)
	}
	domain, err := core.NewDomainId("wonderland")
	if err != nil {
		t.Fatal(err)
	}
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	key := crypto.AccountKey{Algorithm: crypto.Ed25519, Bytes: []byte(pub)}
	authority := core.NewAccountId(domain, key)

	dom := core.NewDomain(domain, authority)
	if err := bc.Apply(core.Instruction{Kind: core.InstrRegister, Register: &core.RegisterPayload{Kind: core.RegisterDomain, Domain: dom}}, authority, 0, "genesis"); err != nil {
		t.Fatalf("register domain: %v", err)
	}
	acc := core.NewAccount(authority)
	if err := bc.Apply(core.Instruction{Kind: core.InstrRegister, Register: &core.RegisterPayload{Kind: core.RegisterAccount, Account: acc}}, authority, 0, "genesis"); err != nil {
		t.Fatalf("register account: %v", err)
	}

	genesisBlock := core.NewBlock(0, "", 0, 1000, nil)
	hash, err := genesisBlock.ComputeHash()
	if err != nil {
		t.Fatal(err)
	}
	bc.Commit(0, hash)

	store := testutil.NewMemBlockStore()
	chain := core.NewBlockchain(store)
	if err := chain.AddBlock(genesisBlock); err != nil {
		t.Fatalf("add genesis block: %v", err)
	}
	if err := chain.Init(); err != nil {
		t.Fatal(err)
	}
	return w, chain, authority, priv
}

func newTestPipeline(t *testing.T) (*Pipeline, core.AccountId, crypto.PrivateKey) {
	t.Helper()
	w, chain, authority, priv := newGenesisFixture(t)
	q := queue.New(100, 10)
	registry := executor.NewRegistry()
	builtin.Register(registry)
	policy := executor.NewPolicy(registry, nil)
	return New(w, chain, q, policy, nil), authority, priv
}

func submitSelfSetKV(t *testing.T, p *Pipeline, authority core.AccountId, priv crypto.PrivateKey, nowMs int64) {
	t.Helper()
	account, ok := p.WSV.GetAccount(authority)
	if !ok {
		t.Fatal("fixture account missing")
	}
	key := account.Signatories[0]
	instr := core.Instruction{Kind: core.InstrSetKeyValue, SetKV: &core.SetKeyValuePayload{Subject: authority.String(), Key: "nickname", Value: "alice"}}
	tx := core.NewTransaction("test-chain", authority, []core.Instruction{instr}, 60_000)
	tx.CreatedAtMs = nowMs
	if err := tx.AddSignature(crypto.Ed25519, key, priv); err != nil {
		t.Fatal(err)
	}
	if err := p.Queue.Add(tx, nowMs); err != nil {
		t.Fatalf("Queue.Add: %v", err)
	}
}

// TestCreateCandidateAndCommit drives a full Pending -> Valid -> Signed ->
// Committed cycle for a single accepted transaction.
func TestCreateCandidateAndCommit(t *testing.T) {
	p, authority, priv := newTestPipeline(t)
	submitSelfSetKV(t, p, authority, priv, 1000)

	candidate, err := p.CreateCandidate(0, 10, 1000)
	if err != nil {
		t.Fatalf("CreateCandidate: %v", err)
	}
	if len(candidate.Block.Transactions) != 1 {
		t.Fatalf("candidate transactions: got %d want 1", len(candidate.Block.Transactions))
	}
	if !candidate.Block.Transactions[0].Accepted {
		t.Fatalf("transaction should have been accepted: %+v", candidate.Block.Transactions[0].Rejection)
	}

	_, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	if err := Sign(candidate.Block, priv, pub); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if err := p.Commit(candidate.Block, candidate.Ctx, 1000); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if p.WSV.Height() != 1 {
		t.Errorf("WSV height after commit: got %d want 1", p.WSV.Height())
	}
	if p.Queue.Size() != 0 {
		t.Errorf("queue should be drained after commit, got size %d", p.Queue.Size())
	}
}

// TestCreateCandidateRejectsInvalidTransactionIndividually verifies a
// transaction that fails policy validation is categorised as rejected
// rather than aborting the whole candidate (spec §4.H).
func TestCreateCandidateRejectsInvalidTransactionIndividually(t *testing.T) {
	p, authority, priv := newTestPipeline(t)
	submitSelfSetKV(t, p, authority, priv, 1000)

	account, _ := p.WSV.GetAccount(authority)
	key := account.Signatories[0]
	badInstr := core.Instruction{Kind: core.InstrSetKeyValue, SetKV: &core.SetKeyValuePayload{Subject: "someone-else", Key: "k", Value: "v"}}
	badTx := core.NewTransaction("test-chain", authority, []core.Instruction{badInstr}, 60_000)
	badTx.CreatedAtMs = 1000
	badTx.Nonce = new(uint64)
	*badTx.Nonce = 1
	if err := badTx.AddSignature(crypto.Ed25519, key, priv); err != nil {
		t.Fatal(err)
	}
	if err := p.Queue.Add(badTx, 1000); err != nil {
		t.Fatal(err)
	}

	candidate, err := p.CreateCandidate(0, 10, 1000)
	if err != nil {
		t.Fatalf("CreateCandidate: %v", err)
	}
	if len(candidate.Block.Transactions) != 2 {
		t.Fatalf("candidate transactions: got %d want 2", len(candidate.Block.Transactions))
	}
	var acceptedCount, rejectedCount int
	for _, ct := range candidate.Block.Transactions {
		if ct.Accepted {
			acceptedCount++
		} else {
			rejectedCount++
		}
	}
	if acceptedCount != 1 || rejectedCount != 1 {
		t.Errorf("got accepted=%d rejected=%d, want 1 and 1", acceptedCount, rejectedCount)
	}
}

// TestValidateCandidateRejectsHeightMismatch verifies ValidateCandidate
// checks the block's declared height against the current WSV height.
func TestValidateCandidateRejectsHeightMismatch(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	badBlock := core.NewBlock(5, p.WSV.LatestBlockHash(), 0, 1000, nil)
	if _, err := p.ValidateCandidate(badBlock); err == nil {
		t.Error("a block at the wrong height should fail validation")
	}
}

// TestValidateCandidateRejectsPreviousHashMismatch verifies chain linkage is
// enforced independently of height.
func TestValidateCandidateRejectsPreviousHashMismatch(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	badBlock := core.NewBlock(1, "not-the-real-parent", 0, 1000, nil)
	if _, err := p.ValidateCandidate(badBlock); err == nil {
		t.Error("a block with the wrong previous hash should fail validation")
	}
}

// TestReplayRebuildsWSVFromDurableChain verifies Replay reproduces WSV
// state from a chain with no accompanying in-memory WSV history (e.g. a
// restarted node).
func TestReplayRebuildsWSVFromDurableChain(t *testing.T) {
	p, authority, priv := newTestPipeline(t)
	submitSelfSetKV(t, p, authority, priv, 1000)
	candidate, err := p.CreateCandidate(0, 10, 1000)
	if err != nil {
		t.Fatal(err)
	}
	_, pub, _ := crypto.GenerateKeyPair()
	if err := Sign(candidate.Block, priv, pub); err != nil {
		t.Fatal(err)
	}
	if err := p.Commit(candidate.Block, candidate.Ctx, 1000); err != nil {
		t.Fatal(err)
	}

	freshWSV := wsv.New()
	fresh, err := wsv.Begin(freshWSV)
	if err != nil {
		t.Fatal(err)
	}
	// Reconstruct the genesis-time registration on the fresh WSV. Replay
	// then re-applies every stored block from the WSV's current height
	// (here 0, the empty genesis block) through the chain tip.
	domain, _ := core.NewDomainId("wonderland")
	if err := fresh.Apply(core.Instruction{Kind: core.InstrRegister, Register: &core.RegisterPayload{Kind: core.RegisterDomain, Domain: core.NewDomain(domain, authority)}}, authority, 0, "genesis"); err != nil {
		t.Fatal(err)
	}
	if err := fresh.Apply(core.Instruction{Kind: core.InstrRegister, Register: &core.RegisterPayload{Kind: core.RegisterAccount, Account: core.NewAccount(authority)}}, authority, 0, "genesis"); err != nil {
		t.Fatal(err)
	}
	genesisBlock, err := p.Chain.GetBlockByHeight(0)
	if err != nil {
		t.Fatal(err)
	}
	genesisHash, err := genesisBlock.ComputeHash()
	if err != nil {
		t.Fatal(err)
	}
	fresh.Commit(0, genesisHash)

	replayPipeline := New(freshWSV, p.Chain, queue.New(100, 10), p.Policy, nil)
	if err := replayPipeline.Replay(); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if freshWSV.Height() != 1 {
		t.Errorf("height after replay: got %d want 1", freshWSV.Height())
	}
}
