package vm

import (
	"fmt"

	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/wsv"
)

// Sandbox ties a Runtime and its module Cache together as the single entry
// point the rest of the node calls to run wasm: installed executor policy
// entry points (spec §4.G) and ActionWasm trigger bodies (spec §4.K) both
// go through RunModule. Unlike the teacher's ExecuteBlock, a failing call
// here never aborts the whole block — the caller (blockpipeline/executor)
// decides per transaction whether to reject, using the returned
// core.Rejection rather than a bare error.
type Sandbox struct {
	runtime *Runtime
	cache   *Cache
}

func NewSandbox() *Sandbox {
	rt := NewRuntime()
	return &Sandbox{runtime: rt, cache: NewCache(rt)}
}

// OnExecutorUpgrade drops the cached module so the next RunModule call
// recompiles. Nothing in the node calls it: Cache.Get already recompiles
// when the version or code it is given differs from the cached module.
func (s *Sandbox) OnExecutorUpgrade() {
	s.cache.Invalidate()
}

// RunModule instantiates the wasm module installed at version and invokes
// its "_start" entry point under ctx's gas budget and host bindings.
// Returns a failed Result rather than an error for any sandbox-internal
// fault (trap, resource exhaustion) so callers can turn it into a
// core.Rejection without inspecting error text.
func (s *Sandbox) RunModule(version uint64, wasmBytes []byte, ctx *Context) (*Result, error) {
	compiled, err := s.cache.Get(version, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("compile executor module: %w", err)
	}
	return Execute(compiled.Store, compiled.Module, ctx)
}

// NewTxContext builds a sandbox Context for running the installed
// executor's validate_transaction entry point over tx, wiring
// execute_instruction back through block so policy code observes the same
// working WSV the block pipeline will eventually commit.
func NewTxContext(block *wsv.BlockContext, authority core.AccountId, height uint64, txPayload []byte, gasBudget uint64, executeQuery func(string, []byte) ([]byte, error)) *Context {
	return &Context{
		Block:       block,
		Authority:   authority,
		BlockHeight: height,
		TxPayload:   txPayload,
		Gas:         NewGasMeter(gasBudget),
		ExecuteInstruction: func(instr core.Instruction, as core.AccountId) error {
			return block.Apply(instr, as, height, "")
		},
		ExecuteQuery: executeQuery,
	}
}

// NewTriggerContext builds a sandbox Context for running an ActionWasm
// trigger body, wiring get_triggering_event to the event that fired it
// (spec §4.K: "a wasm action observes the event that triggered it through
// the host ABI, not as a call argument").
func NewTriggerContext(block *wsv.BlockContext, authority core.AccountId, height uint64, ev core.Event, gasBudget uint64) *Context {
	return &Context{
		Block:           block,
		Authority:       authority,
		BlockHeight:     height,
		TriggeringEvent: &ev,
		Gas:             NewGasMeter(gasBudget),
		ExecuteInstruction: func(instr core.Instruction, as core.AccountId) error {
			return block.Apply(instr, as, height, ev.TransactionHash)
		},
	}
}
