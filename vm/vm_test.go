package vm

import (
	"testing"

	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/crypto"
	"github.com/tolelom/irohad/wsv"
)

// minimalWasmModule is the smallest valid WebAssembly module: the magic
// number and version, no sections. It compiles but exports neither
// "memory" nor "_start", exercising Execute's precondition checks without
// needing a real guest binary.
var minimalWasmModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// TestGasMeterConsume verifies budget accounting and the overdraw guard
// (spec §4.F resource exhaustion).
func TestGasMeterConsume(t *testing.T) {
	g := NewGasMeter(100)
	if err := g.Consume(40); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if err := g.Consume(40); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if g.Used() != 80 {
		t.Errorf("Used: got %d want 80", g.Used())
	}
	if err := g.Consume(21); err != ErrResourceExhausted {
		t.Errorf("Consume past budget: got %v want ErrResourceExhausted", err)
	}
	if g.Used() != 80 {
		t.Errorf("Used should not change on a failed Consume, got %d", g.Used())
	}
}

// TestCacheGetCompilesAndReusesModule verifies a repeated Get at the same
// version returns the same compiled module without recompiling, and a
// version bump forces recompilation.
func TestCacheGetCompilesAndReusesModule(t *testing.T) {
	rt := NewRuntime()
	cache := NewCache(rt)

	first, err := cache.Get(1, minimalWasmModule)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := cache.Get(1, minimalWasmModule)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first.Module != second.Module {
		t.Error("repeated Get at the same version should reuse the cached module")
	}
	if first.InstanceID == second.InstanceID {
		t.Error("each Get call should mint a distinct instance id")
	}

	third, err := cache.Get(2, minimalWasmModule)
	if err != nil {
		t.Fatalf("Get at new version: %v", err)
	}
	if third.Module == first.Module {
		t.Error("a version bump should force recompilation, not reuse the old module pointer")
	}
}

// TestCacheInvalidateForcesRecompile verifies Invalidate drops the cached
// entry so the next Get recompiles even at the same version.
func TestCacheInvalidateForcesRecompile(t *testing.T) {
	rt := NewRuntime()
	cache := NewCache(rt)

	first, err := cache.Get(1, minimalWasmModule)
	if err != nil {
		t.Fatal(err)
	}
	cache.Invalidate()
	second, err := cache.Get(1, minimalWasmModule)
	if err != nil {
		t.Fatal(err)
	}
	if first.Module == second.Module {
		t.Error("Get after Invalidate should recompile rather than reuse the old module")
	}
}

// TestSandboxRunModuleRejectsMissingMemoryExport verifies RunModule surfaces
// a sandbox-internal fault as a failed Result/error rather than panicking
// when the guest module lacks the required "memory" export.
func TestSandboxRunModuleRejectsMissingMemoryExport(t *testing.T) {
	sandbox := NewSandbox()
	ctx := &Context{Gas: NewGasMeter(1_000_000)}
	if _, err := sandbox.RunModule(1, minimalWasmModule, ctx); err == nil {
		t.Error("a module with no memory/_start export should fail to execute")
	}
}

// TestNewTxContextWiresExecuteInstructionThroughBlock verifies the context
// built for validate_transaction dispatches execute_instruction calls back
// into the supplied BlockContext, mutating its working WSV rather than a
// detached one.
func TestNewTxContextWiresExecuteInstructionThroughBlock(t *testing.T) {
	w := wsv.New()
	bc, err := wsv.Begin(w)
	if err != nil {
		t.Fatal(err)
	}
	domain, err := core.NewDomainId("wonderland")
	if err != nil {
		t.Fatal(err)
	}
	_, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	key := crypto.AccountKey{Algorithm: crypto.Ed25519, Bytes: []byte(pub)}
	authority := core.NewAccountId(domain, key)
	if err := bc.Apply(core.Instruction{Kind: core.InstrRegister, Register: &core.RegisterPayload{Kind: core.RegisterDomain, Domain: core.NewDomain(domain, authority)}}, authority, 1, "h1"); err != nil {
		t.Fatal(err)
	}

	ctx := NewTxContext(bc, authority, 1, nil, 1_000_000, nil)
	defId, err := core.NewAssetDefinitionId("rose", domain)
	if err != nil {
		t.Fatal(err)
	}
	instr := core.Instruction{Kind: core.InstrRegister, Register: &core.RegisterPayload{Kind: core.RegisterAssetDefinition, AssetDefinition: core.NewAssetDefinition(defId, core.ValueNumeric, core.MintIndefinite)}}
	if err := ctx.ExecuteInstruction(instr, authority); err != nil {
		t.Fatalf("ExecuteInstruction: %v", err)
	}
	if _, ok := bc.WSV().GetAssetDefinition(defId); !ok {
		t.Error("ExecuteInstruction should have applied the instruction to bc's working WSV")
	}
}

// TestDeterministicRandomIsReplaySafeAndCallDistinct verifies get_random's
// output depends on every component of its seed (spec §4.F: seeded from
// block height, transaction payload, and call index): the same inputs
// reproduce identically for replay, while varying any one component
// changes the output.
func TestDeterministicRandomIsReplaySafeAndCallDistinct(t *testing.T) {
	txA := []byte("tx-a-payload")
	txB := []byte("tx-b-payload")

	a1 := deterministicRandom(10, txA, 0, 32)
	a1Replay := deterministicRandom(10, txA, 0, 32)
	if string(a1) != string(a1Replay) {
		t.Error("identical (height, txPayload, callIndex) should reproduce identical output on replay")
	}

	a2 := deterministicRandom(10, txA, 1, 32)
	if string(a1) == string(a2) {
		t.Error("two get_random calls in the same transaction should not collide on call index alone")
	}

	b1 := deterministicRandom(10, txB, 0, 32)
	if string(a1) == string(b1) {
		t.Error("two different transactions should not collide on identical call index/height")
	}

	h1 := deterministicRandom(11, txA, 0, 32)
	if string(a1) == string(h1) {
		t.Error("two different block heights should not collide")
	}
}
