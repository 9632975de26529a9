package executor

import (
	"testing"

	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/crypto"
	"github.com/tolelom/irohad/executor/builtin"
	"github.com/tolelom/irohad/wsv"
)

func setupPolicyFixture(t *testing.T) (*wsv.BlockContext, core.AccountId, crypto.PrivateKey, *Policy) {
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
	accountId := core.NewAccountId(domain, key)

	dom := core.NewDomain(domain, accountId)
	if err := bc.Apply(core.Instruction{Kind: core.InstrRegister, Register: &core.RegisterPayload{Kind: core.RegisterDomain, Domain: dom}}, accountId, 1, "h1"); err != nil {
		t.Fatalf("register domain: %v", err)
	}
	acc := core.NewAccount(accountId)
	if err := bc.Apply(core.Instruction{Kind: core.InstrRegister, Register: &core.RegisterPayload{Kind: core.RegisterAccount, Account: acc}}, accountId, 1, "h1"); err != nil {
		t.Fatalf("register account: %v", err)
	}

	registry := NewRegistry()
	builtin.Register(registry)
	policy := NewPolicy(registry, nil)
	return bc, accountId, priv, policy
}

// TestPolicyValidateTransactionRejectsQuorumNotMet verifies an unsigned
// transaction (no matching signatures) is rejected before any instruction
// is even inspected.
func TestPolicyValidateTransactionRejectsQuorumNotMet(t *testing.T) {
	bc, authority, _, policy := setupPolicyFixture(t)
	tx := core.NewTransaction("test-chain", authority, nil, 60_000)
	if err := policy.ValidateTransaction(bc, tx); err == nil {
		t.Error("a transaction with no signatures should fail the quorum check")
	}
}

// TestPolicyValidateTransactionAllowsSelfSetKeyValue verifies an account
// may set its own metadata without any extra grant.
func TestPolicyValidateTransactionAllowsSelfSetKeyValue(t *testing.T) {
	bc, authority, priv, policy := setupPolicyFixture(t)
	accountPub, ok := bc.WSV().GetAccount(authority)
	if !ok {
		t.Fatal("fixture account missing")
	}
	key := accountPub.Signatories[0]

	instr := core.Instruction{Kind: core.InstrSetKeyValue, SetKV: &core.SetKeyValuePayload{Subject: authority.String(), Key: "nickname", Value: "alice"}}
	tx := core.NewTransaction("test-chain", authority, []core.Instruction{instr}, 60_000)
	if err := tx.AddSignature(crypto.Ed25519, key, priv); err != nil {
		t.Fatal(err)
	}
	if err := policy.ValidateTransaction(bc, tx); err != nil {
		t.Errorf("setting one's own metadata should be allowed: %v", err)
	}
}

// TestPolicyValidateInstructionRecursesSequence verifies a Sequence of
// instructions is validated leaf by leaf, denying on the first failure.
func TestPolicyValidateInstructionRecursesSequence(t *testing.T) {
	bc, authority, _, policy := setupPolicyFixture(t)
	pctx := &ValidationContext{Block: bc, Authority: authority}

	ok := core.Instruction{Kind: core.InstrSetKeyValue, SetKV: &core.SetKeyValuePayload{Subject: authority.String(), Key: "a", Value: 1}}
	denied := core.Instruction{Kind: core.InstrRegister, Register: &core.RegisterPayload{Kind: core.RegisterDomain, Domain: core.NewDomain(mustDomainId(t, "forbidden"), authority)}}
	seq := core.Instruction{Kind: core.InstrSequence, Sequence: []core.Instruction{ok, denied}}

	if err := policy.ValidateInstruction(pctx, seq, 0); err == nil {
		t.Error("a sequence containing a denied instruction should fail")
	}
}

// TestPolicyValidateInstructionEnforcesRecursionDepth verifies pathologically
// deep nesting is rejected rather than recursing unboundedly.
func TestPolicyValidateInstructionEnforcesRecursionDepth(t *testing.T) {
	bc, authority, _, policy := setupPolicyFixture(t)
	pctx := &ValidationContext{Block: bc, Authority: authority}

	leaf := core.Instruction{Kind: core.InstrSetKeyValue, SetKV: &core.SetKeyValuePayload{Subject: authority.String(), Key: "a", Value: 1}}
	nested := leaf
	for i := 0; i < MaxRecursionDepth+2; i++ {
		nested = core.Instruction{Kind: core.InstrSequence, Sequence: []core.Instruction{nested}}
	}
	if err := policy.ValidateInstruction(pctx, nested, 0); err == nil {
		t.Error("nesting beyond MaxRecursionDepth should fail")
	}
}

func mustDomainId(t *testing.T, name string) core.DomainId {
	t.Helper()
	id, err := core.NewDomainId(name)
	if err != nil {
		t.Fatal(err)
	}
	return id
}
