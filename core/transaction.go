package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tolelom/irohad/crypto"
)

// TxSignature pairs a signatory's public key with its signature over the
// transaction's signing body (spec §3: "signatures = non-empty set of
// (public_key, signature)").
type TxSignature struct {
	Key       crypto.AccountKey `json:"key"`
	Signature []byte            `json:"signature"`
}

// Transaction is the payload spec §3 describes: chain id, authority,
// instruction list, creation timestamp, TTL, optional nonce, metadata, plus
// a growable signature set. Signed transactions are immutable except that
// signatures may be added (never removed) before commit.
type Transaction struct {
	ChainId     string         `json:"chain_id"`
	Authority   AccountId      `json:"authority"`
	Payload     []Instruction  `json:"payload"`
	CreatedAtMs int64          `json:"created_at_ms"`
	TTLMs       int64          `json:"ttl_ms"`
	Nonce       *uint64        `json:"nonce,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Signatures  []TxSignature  `json:"signatures"`
}

// signingBody mirrors Transaction's signed fields, sans Signatures — the
// same pattern the teacher's core/transaction.go used for its single-field
// payload, generalised to the richer instruction list.
type signingBody struct {
	ChainId     string         `json:"chain_id"`
	Authority   string         `json:"authority"`
	Payload     []Instruction  `json:"payload"`
	CreatedAtMs int64          `json:"created_at_ms"`
	TTLMs       int64          `json:"ttl_ms"`
	Nonce       *uint64        `json:"nonce,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (t *Transaction) signingBytes() ([]byte, error) {
	body := signingBody{
		ChainId:     t.ChainId,
		Authority:   t.Authority.String(),
		Payload:     t.Payload,
		CreatedAtMs: t.CreatedAtMs,
		TTLMs:       t.TTLMs,
		Nonce:       t.Nonce,
		Metadata:    t.Metadata,
	}
	return json.Marshal(body)
}

// Hash returns the domain-separated hash of the transaction payload.
func (t *Transaction) Hash() (string, error) {
	b, err := t.signingBytes()
	if err != nil {
		return "", fmt.Errorf("marshal signing body: %w", err)
	}
	return crypto.TaggedHashHex(crypto.TagTransaction, b), nil
}

// NewTransaction constructs an unsigned transaction with CreatedAtMs set to
// now.
func NewTransaction(chainId string, authority AccountId, instructions []Instruction, ttlMs int64) *Transaction {
	return &Transaction{
		ChainId:     chainId,
		Authority:   authority,
		Payload:     instructions,
		CreatedAtMs: time.Now().UnixMilli(),
		TTLMs:       ttlMs,
		Metadata:    make(map[string]any),
	}
}

// AddSignature signs the transaction's signing body with priv (whose
// algorithm is alg) and appends the resulting TxSignature. Signature sets
// only grow (spec §3).
func (t *Transaction) AddSignature(alg crypto.Algorithm, key crypto.AccountKey, priv []byte) error {
	b, err := t.signingBytes()
	if err != nil {
		return fmt.Errorf("marshal signing body: %w", err)
	}
	sig, err := crypto.SignAlgorithm(alg, priv, b)
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	t.Signatures = append(t.Signatures, TxSignature{Key: key, Signature: sig})
	return nil
}

// VerifySignatures checks every attached signature against the signing
// body, returning an error naming the first signatory that fails.
func (t *Transaction) VerifySignatures() error {
	if len(t.Signatures) == 0 {
		return fmt.Errorf("transaction has no signatures")
	}
	b, err := t.signingBytes()
	if err != nil {
		return fmt.Errorf("marshal signing body: %w", err)
	}
	for _, sig := range t.Signatures {
		if err := crypto.VerifyAlgorithm(sig.Key, b, sig.Signature); err != nil {
			return fmt.Errorf("signature by %s invalid: %w", sig.Key, err)
		}
	}
	return nil
}

// QuorumMet reports whether enough of signatories also appear among t's
// attached Signatures to reach quorum (spec §9 Open Question (a)).
func (t *Transaction) QuorumMet(signatories []crypto.AccountKey, quorum uint32) bool {
	count := uint32(0)
	for _, s := range signatories {
		for _, sig := range t.Signatures {
			if sig.Key.Equal(s) {
				count++
				break
			}
		}
	}
	return count >= quorum
}

// IsExpired reports whether now is at or past CreatedAtMs+TTLMs (spec §8
// boundary behaviour: "Transaction at exactly creation + TTL: rejected
// (strict inequality)").
func (t *Transaction) IsExpired(nowMs int64) bool {
	return nowMs >= t.CreatedAtMs+t.TTLMs
}

// IsFuture reports whether the transaction's creation timestamp is further
// in the future than futureThresholdMs allows.
func (t *Transaction) IsFuture(nowMs int64, futureThresholdMs int64) bool {
	return t.CreatedAtMs > nowMs+futureThresholdMs
}
