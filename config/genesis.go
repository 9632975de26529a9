package config

import (
	"encoding/hex"
	"fmt"

	"github.com/tolelom/irohad/blockpipeline"
	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/crypto"
	"github.com/tolelom/irohad/queue"
	"github.com/tolelom/irohad/wsv"
)

// GenesisHash is the canonical previous-block hash for the genesis block.
const GenesisHash = ""

// BuildGenesisBlock constructs block #0 from cfg.Genesis: it registers the
// default domain, one account per configured genesis signatory, and the
// peer set consensus rotates roles over, applied through a BlockContext the
// same way any other block's instructions are (spec §3: "genesis is an
// ordinary block whose transactions happen to run before any peer has
// joined consensus").
func BuildGenesisBlock(w *wsv.WSV, cfg *GenesisConfig, proposerPriv crypto.PrivateKey) (*core.Block, *wsv.BlockContext, error) {
	bc, err := wsv.Begin(w)
	if err != nil {
		return nil, nil, fmt.Errorf("begin genesis block context: %w", err)
	}

	domainId, err := core.NewDomainId(cfg.DefaultDomain)
	if err != nil {
		bc.Discard()
		return nil, nil, fmt.Errorf("default domain id: %w", err)
	}

	genesisAuthority := core.NewAccountId(domainId, crypto.AccountKey{Algorithm: crypto.Ed25519, Bytes: proposerPriv.Public()})
	instructions := []core.Instruction{{
		Kind:     core.InstrRegister,
		Register: &core.RegisterPayload{Kind: core.RegisterDomain, Domain: core.NewDomain(domainId, genesisAuthority)},
	}}

	for _, acc := range cfg.Accounts {
		keyBytes, err := hex.DecodeString(acc.KeyHex)
		if err != nil {
			bc.Discard()
			return nil, nil, fmt.Errorf("genesis account key_hex: %w", err)
		}
		accountId := core.NewAccountId(domainId, crypto.AccountKey{Algorithm: crypto.Ed25519, Bytes: keyBytes})
		account := core.NewAccount(accountId)
		if acc.Quorum > 0 {
			account.Quorum = acc.Quorum
		}
		instructions = append(instructions, core.Instruction{
			Kind:     core.InstrRegister,
			Register: &core.RegisterPayload{Kind: core.RegisterAccount, Account: account},
		})
	}

	for _, p := range cfg.Peers {
		keyBytes, err := hex.DecodeString(p.KeyHex)
		if err != nil {
			bc.Discard()
			return nil, nil, fmt.Errorf("genesis peer key_hex: %w", err)
		}
		peer := core.NewPeer(p.Address, crypto.PublicKey(keyBytes))
		instructions = append(instructions, core.Instruction{
			Kind:     core.InstrRegister,
			Register: &core.RegisterPayload{Kind: core.RegisterPeer, Peer: &peer},
		})
	}

	tx := core.NewTransaction(cfg.ChainId, genesisAuthority, instructions, 0)
	hash, err := tx.Hash()
	if err != nil {
		bc.Discard()
		return nil, nil, fmt.Errorf("hash genesis transaction: %w", err)
	}

	for _, instr := range tx.Payload {
		if err := bc.Apply(instr, tx.Authority, 0, hash); err != nil {
			bc.Discard()
			return nil, nil, fmt.Errorf("apply genesis instruction: %w", err)
		}
	}

	block := core.NewBlock(0, GenesisHash, 0, 0, []core.CategorisedTransaction{{Tx: tx, Accepted: true}})
	if err := block.Sign(proposerPriv, proposerPriv.Public()); err != nil {
		bc.Discard()
		return nil, nil, fmt.Errorf("sign genesis block: %w", err)
	}
	return block, bc, nil
}

// IsGenesisHash returns true if hash is the canonical genesis prev-hash.
func IsGenesisHash(hash string) bool {
	return hash == GenesisHash
}

// InitGenesis commits BuildGenesisBlock's result to chain if chain is
// empty, or is a no-op if it already has a tip. q is the node's live
// transaction queue, so MarkCommitted's replay-protection bookkeeping runs
// against the same queue consensus will drain from.
func InitGenesis(w *wsv.WSV, chain *core.Blockchain, q *queue.Queue, cfg *GenesisConfig, proposerPriv crypto.PrivateKey) error {
	if chain.Tip() != nil {
		return nil
	}
	block, bc, err := BuildGenesisBlock(w, cfg, proposerPriv)
	if err != nil {
		return err
	}
	pipeline := blockpipeline.Pipeline{WSV: w, Chain: chain, Queue: q}
	return pipeline.Commit(block, bc, 0)
}
