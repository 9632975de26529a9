package config

import (
	"encoding/hex"
	"testing"

	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/crypto"
	"github.com/tolelom/irohad/internal/testutil"
	"github.com/tolelom/irohad/queue"
	"github.com/tolelom/irohad/wsv"
)

// TestBuildGenesisBlockRegistersDomainAccountsAndPeers verifies genesis
// block construction applies the default domain, every configured account,
// and every seed peer against the supplied WSV (spec §3).
func TestBuildGenesisBlockRegistersDomainAccountsAndPeers(t *testing.T) {
	w := wsv.New()
	proposerPriv, proposerPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	_, accPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	cfg := &GenesisConfig{
		ChainId:       "irohad-dev",
		DefaultDomain: "wonderland",
		Accounts:      []GenesisAccount{{KeyHex: hex.EncodeToString([]byte(accPub)), Quorum: 2}},
		Peers:         []SeedPeer{{Address: "127.0.0.1:30303", KeyHex: hex.EncodeToString([]byte(proposerPub))}},
	}

	block, bc, err := BuildGenesisBlock(w, cfg, proposerPriv)
	if err != nil {
		t.Fatalf("BuildGenesisBlock: %v", err)
	}
	if block.Header.Height != 0 {
		t.Errorf("genesis block height: got %d want 0", block.Header.Height)
	}
	if !IsGenesisHash(block.Header.PreviousBlockHash) {
		t.Errorf("genesis block previous hash: got %q", block.Header.PreviousBlockHash)
	}

	domainId, err := core.NewDomainId("wonderland")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := bc.WSV().GetDomain(domainId); !ok {
		t.Error("BuildGenesisBlock should register the default domain")
	}
	accountId := core.NewAccountId(domainId, crypto.AccountKey{Algorithm: crypto.Ed25519, Bytes: []byte(accPub)})
	account, ok := bc.WSV().GetAccount(accountId)
	if !ok {
		t.Fatal("BuildGenesisBlock should register the configured genesis account")
	}
	if account.Quorum != 2 {
		t.Errorf("account quorum: got %d want 2", account.Quorum)
	}
	peers := bc.WSV().PeerSet()
	if len(peers) != 1 {
		t.Fatalf("peer set: got %d peers want 1", len(peers))
	}
}

// TestInitGenesisIsNoopWhenChainAlreadyHasATip verifies a restarted node
// with durable chain state does not re-apply genesis.
func TestInitGenesisIsNoopWhenChainAlreadyHasATip(t *testing.T) {
	w := wsv.New()
	proposerPriv, proposerPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	cfg := &GenesisConfig{
		ChainId:       "irohad-dev",
		DefaultDomain: "wonderland",
		Peers:         []SeedPeer{{Address: "127.0.0.1:30303", KeyHex: hex.EncodeToString([]byte(proposerPub))}},
	}
	store := testutil.NewMemBlockStore()
	chain := core.NewBlockchain(store)
	q := queue.New(100, 10)

	if err := InitGenesis(w, chain, q, cfg, proposerPriv); err != nil {
		t.Fatalf("InitGenesis: %v", err)
	}
	if chain.Height() != 0 {
		t.Fatalf("height after first InitGenesis: got %d want 0", chain.Height())
	}
	firstTip := chain.TipHash()

	if err := InitGenesis(w, chain, q, cfg, proposerPriv); err != nil {
		t.Fatalf("second InitGenesis: %v", err)
	}
	if chain.TipHash() != firstTip {
		t.Error("InitGenesis should be a no-op once the chain already has a tip")
	}
}
