package core

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/irohad/crypto"
)

// CategorisedTransaction is one block body entry: a transaction together
// with its outcome, either accepted (executed against the WSV) or rejected
// with a structured reason (spec §4.H).
type CategorisedTransaction struct {
	Tx       *Transaction
	Accepted bool
	Rejection Rejection
}

// BlockSignature pairs a signing peer's long-term public key with its
// signature over the block header (spec §3).
type BlockSignature struct {
	PeerKey   crypto.PublicKey
	Signature string
}

// BlockHeader contains everything hashed and signed for a block (spec §3).
type BlockHeader struct {
	Height                     uint64 `json:"height"`
	PreviousBlockHash          string `json:"previous_block_hash"`
	TransactionsMerkleRoot     string `json:"transactions_merkle_root"`
	RejectedTransactionsRoot   string `json:"rejected_transactions_merkle_root"`
	ViewChangeIndex            uint32 `json:"view_change_index"`
	ConsensusEstimationMs      int64  `json:"consensus_estimation_ms"`
	TimestampMs                int64  `json:"timestamp_ms"`
}

// Block is a signed, categorised transaction batch (spec §3/§4.H).
type Block struct {
	Header       BlockHeader              `json:"header"`
	Transactions []CategorisedTransaction `json:"transactions"`
	Events       []Event                  `json:"events"`
	Signatures   []BlockSignature         `json:"signatures"`
}

// ComputeHash returns the domain-separated hash of the serialised header.
func (b *Block) ComputeHash() (string, error) {
	data, err := json.Marshal(b.Header)
	if err != nil {
		return "", fmt.Errorf("marshal header: %w", err)
	}
	return crypto.TaggedHashHex(crypto.TagBlock, data), nil
}

// Sign appends a peer signature over the block header.
func (b *Block) Sign(priv crypto.PrivateKey, pub crypto.PublicKey) error {
	hash, err := b.ComputeHash()
	if err != nil {
		return err
	}
	b.Signatures = append(b.Signatures, BlockSignature{
		PeerKey:   pub,
		Signature: crypto.Sign(priv, []byte(hash)),
	})
	return nil
}

// VerifySignatures checks every attached signature against the recomputed
// header hash.
func (b *Block) VerifySignatures() error {
	hash, err := b.ComputeHash()
	if err != nil {
		return err
	}
	for _, sig := range b.Signatures {
		if err := crypto.Verify(sig.PeerKey, []byte(hash), sig.Signature); err != nil {
			return fmt.Errorf("signature by %s invalid: %w", sig.PeerKey.Hex(), err)
		}
	}
	return nil
}

// CommittedThreshold returns ceil(2f/3)+1 given n = 3f+1 peers (spec §4.H).
func CommittedThreshold(n int) int {
	f := (n - 1) / 3
	num := 2 * f
	ceil := num / 3
	if num%3 != 0 {
		ceil++
	}
	return ceil + 1
}

// IsCommitted reports whether the block carries at least the signature
// threshold for a peer set of size n.
func (b *Block) IsCommitted(n int) bool {
	return len(b.Signatures) >= CommittedThreshold(n)
}

// VerifyIntegrity checks that the Merkle roots in the header match the
// recomputed roots over the block's categorised transactions.
func (b *Block) VerifyIntegrity() error {
	accepted, rejected := splitCategorised(b.Transactions)
	if root := ComputeTransactionsRoot(accepted); root != b.Header.TransactionsMerkleRoot {
		return fmt.Errorf("transactions_merkle_root mismatch: have %s want %s", b.Header.TransactionsMerkleRoot, root)
	}
	if root := ComputeTransactionsRoot(rejected); root != b.Header.RejectedTransactionsRoot {
		return fmt.Errorf("rejected_transactions_merkle_root mismatch: have %s want %s", b.Header.RejectedTransactionsRoot, root)
	}
	return nil
}

func splitCategorised(txs []CategorisedTransaction) (accepted, rejected []*Transaction) {
	for _, ct := range txs {
		if ct.Accepted {
			accepted = append(accepted, ct.Tx)
		} else {
			rejected = append(rejected, ct.Tx)
		}
	}
	return
}

// ComputeTransactionsRoot builds the Merkle root over transaction hashes,
// using each hash's fixed-length hex form as a leaf (the teacher's
// core/block.go ComputeTxRoot pattern, generalised to a true binary Merkle
// tree per spec §4.A instead of a flat concatenated hash). A transaction
// whose hash cannot be computed contributes no leaf.
func ComputeTransactionsRoot(txs []*Transaction) string {
	leaves := make([][]byte, 0, len(txs))
	for _, tx := range txs {
		h, err := tx.Hash()
		if err != nil {
			continue
		}
		leaves = append(leaves, []byte(h))
	}
	return crypto.MerkleRootHex(leaves)
}

// NewBlock constructs a Pending block (spec §4.H) from a categorised
// transaction batch.
func NewBlock(height uint64, prevHash string, view uint32, timestampMs int64, txs []CategorisedTransaction) *Block {
	accepted, rejected := splitCategorised(txs)
	return &Block{
		Header: BlockHeader{
			Height:                   height,
			PreviousBlockHash:        prevHash,
			TransactionsMerkleRoot:   ComputeTransactionsRoot(accepted),
			RejectedTransactionsRoot: ComputeTransactionsRoot(rejected),
			ViewChangeIndex:          view,
			TimestampMs:              timestampMs,
		},
		Transactions: txs,
	}
}
