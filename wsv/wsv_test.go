package wsv

import (
	"testing"

	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/crypto"
)

func registerDomainAndAccount(t *testing.T, bc *BlockContext, domainName string) (core.DomainId, core.AccountId) {
	t.Helper()
	domain, err := core.NewDomainId(domainName)
	if err != nil {
		t.Fatal(err)
	}
	_, pub, err := crypto.GenerateKeyPair()
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
	return domain, accountId
}

// TestBeginCommitVisibility verifies that a BlockContext's mutations are
// invisible on the base WSV until Commit runs.
func TestBeginCommitVisibility(t *testing.T) {
	w := New()
	bc, err := Begin(w)
	if err != nil {
		t.Fatal(err)
	}
	domain, account := registerDomainAndAccount(t, bc, "wonderland")

	if _, ok := w.GetDomain(domain); ok {
		t.Error("domain should not be visible on the base WSV before Commit")
	}
	bc.Commit(1, "blockhash1")

	if _, ok := w.GetDomain(domain); !ok {
		t.Error("domain should be visible on the base WSV after Commit")
	}
	if _, ok := w.GetAccount(account); !ok {
		t.Error("account should be visible on the base WSV after Commit")
	}
	if w.Height() != 1 {
		t.Errorf("height: got %d want 1", w.Height())
	}
	if w.LatestBlockHash() != "blockhash1" {
		t.Errorf("latest block hash: got %q want %q", w.LatestBlockHash(), "blockhash1")
	}
}

// TestDiscardLeavesBaseUntouched verifies Discard never commits anything.
func TestDiscardLeavesBaseUntouched(t *testing.T) {
	w := New()
	bc, err := Begin(w)
	if err != nil {
		t.Fatal(err)
	}
	domain, _ := registerDomainAndAccount(t, bc, "wonderland")
	bc.Discard()

	if _, ok := w.GetDomain(domain); ok {
		t.Error("discarded block context should leave base WSV untouched")
	}
	if w.Height() != 0 {
		t.Errorf("height should remain 0 after discard, got %d", w.Height())
	}
}

// TestApplyAfterDoneFails ensures a committed/discarded context rejects
// further Apply calls rather than silently mutating stale state.
func TestApplyAfterDoneFails(t *testing.T) {
	w := New()
	bc, err := Begin(w)
	if err != nil {
		t.Fatal(err)
	}
	bc.Discard()

	domain, _ := core.NewDomainId("wonderland")
	_, pub, _ := crypto.GenerateKeyPair()
	key := crypto.AccountKey{Algorithm: crypto.Ed25519, Bytes: []byte(pub)}
	owner := core.NewAccountId(domain, key)
	instr := core.Instruction{Kind: core.InstrRegister, Register: &core.RegisterPayload{Kind: core.RegisterDomain, Domain: core.NewDomain(domain, owner)}}
	if err := bc.Apply(instr, owner, 1, "h1"); err == nil {
		t.Error("Apply after Discard should fail")
	}
}

// TestMintTransferBurn exercises the asset lifecycle across two accounts,
// checking the resulting balances after each committed step.
func TestMintTransferBurn(t *testing.T) {
	w := New()
	bc, err := Begin(w)
	if err != nil {
		t.Fatal(err)
	}
	domain, alice := registerDomainAndAccount(t, bc, "wonderland")

	bobDomain, _ := core.NewDomainId("wonderland")
	_, bobPub, _ := crypto.GenerateKeyPair()
	bobKey := crypto.AccountKey{Algorithm: crypto.Ed25519, Bytes: []byte(bobPub)}
	bob := core.NewAccountId(bobDomain, bobKey)
	if err := bc.Apply(core.Instruction{Kind: core.InstrRegister, Register: &core.RegisterPayload{Kind: core.RegisterAccount, Account: core.NewAccount(bob)}}, alice, 1, "h1"); err != nil {
		t.Fatalf("register bob: %v", err)
	}

	defId, err := core.NewAssetDefinitionId("rose", domain)
	if err != nil {
		t.Fatal(err)
	}
	def := core.NewAssetDefinition(defId, core.ValueNumeric, core.MintIndefinite)
	if err := bc.Apply(core.Instruction{Kind: core.InstrRegister, Register: &core.RegisterPayload{Kind: core.RegisterAssetDefinition, AssetDefinition: def}}, alice, 1, "h1"); err != nil {
		t.Fatalf("register asset definition: %v", err)
	}

	aliceAssetId := core.NewAssetId(defId, alice)
	if err := bc.Apply(core.Instruction{Kind: core.InstrMint, Mint: &core.MintPayload{AssetId: aliceAssetId, Value: core.NumericValue(100)}}, alice, 1, "h1"); err != nil {
		t.Fatalf("mint: %v", err)
	}
	bc.Commit(1, "blockhash1")

	aliceAsset, ok := w.GetAsset(aliceAssetId)
	if !ok || aliceAsset.Value.Numeric != 100 {
		t.Fatalf("alice asset after mint: got %+v", aliceAsset)
	}

	bc2, err := Begin(w)
	if err != nil {
		t.Fatal(err)
	}
	if err := bc2.Apply(core.Instruction{Kind: core.InstrTransfer, Transfer: &core.TransferPayload{AssetId: aliceAssetId, Destination: bob, Value: core.NumericValue(30)}}, alice, 2, "h2"); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	bc2.Commit(2, "blockhash2")

	aliceAsset, _ = w.GetAsset(aliceAssetId)
	if aliceAsset.Value.Numeric != 70 {
		t.Errorf("alice balance after transfer: got %d want 70", aliceAsset.Value.Numeric)
	}
	bobAssetId := core.NewAssetId(defId, bob)
	bobAsset, ok := w.GetAsset(bobAssetId)
	if !ok || bobAsset.Value.Numeric != 30 {
		t.Fatalf("bob asset after transfer: got %+v", bobAsset)
	}

	bc3, err := Begin(w)
	if err != nil {
		t.Fatal(err)
	}
	if err := bc3.Apply(core.Instruction{Kind: core.InstrBurn, Burn: &core.BurnPayload{AssetId: aliceAssetId, Value: core.NumericValue(70)}}, alice, 3, "h3"); err != nil {
		t.Fatalf("burn: %v", err)
	}
	bc3.Commit(3, "blockhash3")

	aliceAsset, _ = w.GetAsset(aliceAssetId)
	if aliceAsset.Value.Numeric != 0 {
		t.Errorf("alice balance after burn: got %d want 0", aliceAsset.Value.Numeric)
	}
}

// TestTransferRecognisesUnregisteredDestination verifies a Transfer to an
// account that was never Register-ed creates its asset balance rather than
// failing (spec S2: "carol@wonderland did not exist prior; expect it to be
// created (recognised) with rose balance 3").
func TestTransferRecognisesUnregisteredDestination(t *testing.T) {
	w := New()
	bc, err := Begin(w)
	if err != nil {
		t.Fatal(err)
	}
	domain, alice := registerDomainAndAccount(t, bc, "wonderland")

	defId, err := core.NewAssetDefinitionId("rose", domain)
	if err != nil {
		t.Fatal(err)
	}
	def := core.NewAssetDefinition(defId, core.ValueNumeric, core.MintIndefinite)
	if err := bc.Apply(core.Instruction{Kind: core.InstrRegister, Register: &core.RegisterPayload{Kind: core.RegisterAssetDefinition, AssetDefinition: def}}, alice, 1, "h1"); err != nil {
		t.Fatalf("register asset definition: %v", err)
	}
	aliceAssetId := core.NewAssetId(defId, alice)
	if err := bc.Apply(core.Instruction{Kind: core.InstrMint, Mint: &core.MintPayload{AssetId: aliceAssetId, Value: core.NumericValue(10)}}, alice, 1, "h1"); err != nil {
		t.Fatalf("mint: %v", err)
	}
	bc.Commit(1, "blockhash1")

	carolDomain, _ := core.NewDomainId("wonderland")
	_, carolPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	carolKey := crypto.AccountKey{Algorithm: crypto.Ed25519, Bytes: []byte(carolPub)}
	carol := core.NewAccountId(carolDomain, carolKey)

	if _, ok := w.GetAccount(carol); ok {
		t.Fatal("carol should not be registered before the transfer")
	}

	bc2, err := Begin(w)
	if err != nil {
		t.Fatal(err)
	}
	if err := bc2.Apply(core.Instruction{Kind: core.InstrTransfer, Transfer: &core.TransferPayload{AssetId: aliceAssetId, Destination: carol, Value: core.NumericValue(3)}}, alice, 2, "h2"); err != nil {
		t.Fatalf("transfer to unregistered destination: %v", err)
	}
	bc2.Commit(2, "blockhash2")

	carolAssetId := core.NewAssetId(defId, carol)
	carolAsset, ok := w.GetAsset(carolAssetId)
	if !ok || carolAsset.Value.Numeric != 3 {
		t.Fatalf("carol asset after transfer: got %+v, want numeric 3", carolAsset)
	}
	aliceAsset, _ := w.GetAsset(aliceAssetId)
	if aliceAsset.Value.Numeric != 7 {
		t.Errorf("alice balance after transfer: got %d want 7", aliceAsset.Value.Numeric)
	}
	if _, ok := w.GetAccount(carol); ok {
		t.Error("carol's asset balance is recognised, but her account should still not be registered")
	}
}

// TestUnregisterAccountCascadesTriggers verifies that unregistering an
// account removes triggers it authored (spec §3 cascade rule).
func TestUnregisterAccountCascadesTriggers(t *testing.T) {
	w := New()
	bc, err := Begin(w)
	if err != nil {
		t.Fatal(err)
	}
	_, alice := registerDomainAndAccount(t, bc, "wonderland")

	triggerId, err := core.NewTriggerId("on_block_committed")
	if err != nil {
		t.Fatal(err)
	}
	trig := core.NewTrigger(triggerId, core.Action{Kind: core.ActionInstructions}, core.RepeatIndefinitely(), alice, core.EventFilter{Kind: core.EventPipeline})
	if err := bc.Apply(core.Instruction{Kind: core.InstrRegister, Register: &core.RegisterPayload{Kind: core.RegisterTrigger, Trigger: trig}}, alice, 1, "h1"); err != nil {
		t.Fatalf("register trigger: %v", err)
	}
	bc.Commit(1, "blockhash1")

	if _, ok := w.GetTrigger(triggerId); !ok {
		t.Fatal("trigger should exist after registration")
	}

	bc2, err := Begin(w)
	if err != nil {
		t.Fatal(err)
	}
	if err := bc2.Apply(core.Instruction{Kind: core.InstrUnregister, Unregister: &core.UnregisterPayload{Kind: core.RegisterAccount, AccountId: alice}}, alice, 2, "h2"); err != nil {
		t.Fatalf("unregister account: %v", err)
	}
	bc2.Commit(2, "blockhash2")

	if _, ok := w.GetTrigger(triggerId); ok {
		t.Error("trigger authored by an unregistered account should be cascaded away")
	}
	if _, ok := w.GetAccount(alice); ok {
		t.Error("account should no longer exist after unregister")
	}
}

// TestAllTriggersSorted verifies AllTriggers returns a deterministic,
// id-sorted order regardless of registration order (spec §4.K).
func TestAllTriggersSorted(t *testing.T) {
	w := New()
	bc, err := Begin(w)
	if err != nil {
		t.Fatal(err)
	}
	_, alice := registerDomainAndAccount(t, bc, "wonderland")

	ids := []string{"zzz_trigger", "aaa_trigger", "mmm_trigger"}
	for _, name := range ids {
		tid, err := core.NewTriggerId(name)
		if err != nil {
			t.Fatal(err)
		}
		trig := core.NewTrigger(tid, core.Action{Kind: core.ActionInstructions}, core.RepeatIndefinitely(), alice, core.EventFilter{Kind: core.EventPipeline})
		if err := bc.Apply(core.Instruction{Kind: core.InstrRegister, Register: &core.RegisterPayload{Kind: core.RegisterTrigger, Trigger: trig}}, alice, 1, "h1"); err != nil {
			t.Fatal(err)
		}
	}
	bc.Commit(1, "blockhash1")

	all := w.AllTriggers()
	if len(all) != 3 {
		t.Fatalf("len(AllTriggers()): got %d want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Id.String() >= all[i].Id.String() {
			t.Fatalf("AllTriggers() not sorted: %s >= %s", all[i-1].Id.String(), all[i].Id.String())
		}
	}
}

// TestComputeRootStableAcrossClone verifies two WSVs with identical
// committed state produce the same root hash (spec §8 invariant 7).
func TestComputeRootStableAcrossClone(t *testing.T) {
	w := New()
	bc, err := Begin(w)
	if err != nil {
		t.Fatal(err)
	}
	registerDomainAndAccount(t, bc, "wonderland")
	bc.Commit(1, "blockhash1")

	clone, err := w.Clone()
	if err != nil {
		t.Fatal(err)
	}
	if w.ComputeRoot() != clone.ComputeRoot() {
		t.Error("a clone of committed state should compute the same root hash")
	}
}
