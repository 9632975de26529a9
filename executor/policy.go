package executor

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/vm"
	"github.com/tolelom/irohad/wsv"
)

// MaxRecursionDepth bounds Sequence/If/Pair nesting (spec §9 Open Question,
// resolved: a fixed limit rather than an unbounded recursive validator).
const MaxRecursionDepth = 32

// ValidationContext is the read-only view a Validator gets: the working
// WSV (already reflecting instructions earlier in the same transaction)
// and the authority the instruction executes as.
type ValidationContext struct {
	Block     *wsv.BlockContext
	Authority core.AccountId
}

// Policy is the installed executor: a native builtin registry used until a
// custom wasm executor bundle is installed via an Upgrade instruction
// (spec §4.G), at which point every leaf instruction is instead validated
// by calling the installed module's entry points through the sandbox.
type Policy struct {
	builtin *Registry
	sandbox *vm.Sandbox
}

// NewPolicy builds a Policy around registry (an empty Registry is used if
// nil — callers wanting the default permission-token rules call
// executor/builtin.Register(registry) before passing it in, since builtin
// imports this package to implement Validator and so cannot be imported
// back from here) and sandbox (may be nil to disable wasm executor support
// entirely, e.g. in tests).
func NewPolicy(registry *Registry, sandbox *vm.Sandbox) *Policy {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Policy{builtin: registry, sandbox: sandbox}
}

// ValidateTransaction runs validate_transaction: quorum first, then every
// instruction in the payload (spec §4.G, §4.E Open Question (a)).
func (p *Policy) ValidateTransaction(bc *wsv.BlockContext, tx *core.Transaction) error {
	account, ok := bc.WSV().GetAccount(tx.Authority)
	if !ok {
		return core.Rejection{Reason: core.RejectExecutorDenial, Message: "unknown authority account"}
	}
	if !tx.QuorumMet(account.Signatories, account.Quorum) {
		return core.Rejection{Reason: core.RejectExecutorDenial, Message: "multisig quorum not met"}
	}

	pctx := &ValidationContext{Block: bc, Authority: tx.Authority}
	for _, instr := range tx.Payload {
		if err := p.ValidateInstruction(pctx, instr, 0); err != nil {
			return core.Rejection{Reason: core.RejectExecutorDenial, Message: err.Error()}
		}
	}
	return nil
}

// ValidateInstruction recurses through composite instructions and defers
// leaf instructions to validateLeaf.
func (p *Policy) ValidateInstruction(pctx *ValidationContext, instr core.Instruction, depth int) error {
	if depth > MaxRecursionDepth {
		return fmt.Errorf("instruction nesting exceeds max recursion depth %d", MaxRecursionDepth)
	}
	switch instr.Kind {
	case core.InstrSequence:
		for _, sub := range instr.Sequence {
			if err := p.ValidateInstruction(pctx, sub, depth+1); err != nil {
				return err
			}
		}
		return nil
	case core.InstrIf:
		if instr.If.Condition {
			return p.ValidateInstruction(pctx, instr.If.Then, depth+1)
		}
		if instr.If.Else != nil {
			return p.ValidateInstruction(pctx, *instr.If.Else, depth+1)
		}
		return nil
	case core.InstrPair:
		if err := p.ValidateInstruction(pctx, instr.Pair.First, depth+1); err != nil {
			return err
		}
		return p.ValidateInstruction(pctx, instr.Pair.Second, depth+1)
	default:
		return p.validateLeaf(pctx, instr)
	}
}

// validateLeaf dispatches to the installed wasm executor if one is
// present, else to the builtin registry.
func (p *Policy) validateLeaf(pctx *ValidationContext, instr core.Instruction) error {
	version, wasmBytes := pctx.Block.WSV().InstalledExecutor()
	if p.sandbox == nil || version == 0 || len(wasmBytes) == 0 {
		return p.builtin.Validate(pctx, instr)
	}

	payload, err := json.Marshal(instr)
	if err != nil {
		return fmt.Errorf("marshal instruction for executor: %w", err)
	}
	ctx := vm.NewTxContext(pctx.Block, pctx.Authority, pctx.Block.WSV().Height(), payload, defaultValidationGas, nil)
	result, err := p.sandbox.RunModule(uint64(version), wasmBytes, ctx)
	if err != nil {
		return fmt.Errorf("run installed executor: %w", err)
	}
	if !result.Pass {
		if result.Err != nil {
			return fmt.Errorf("executor denied instruction: %w", result.Err)
		}
		return fmt.Errorf("executor denied instruction")
	}
	return nil
}

// ValidateQuery runs validate_query: a query never mutates state, so it
// reads directly from the committed WSV rather than through a BlockContext.
// A requester that is not itself a registered account is denied outright
// (spec §8 scenario S2: a query from an unregistered account must be
// rejected with Validation). There is no further read-permission check:
// any registered account passes, whatever queryName is.
func (p *Policy) ValidateQuery(w *wsv.WSV, authority core.AccountId, queryName string) error {
	account, ok := w.GetAccount(authority)
	if !ok {
		return core.Rejection{Reason: core.RejectExecutorDenial, Message: fmt.Sprintf("unknown authority account %s", authority.String())}
	}
	_ = account // builtin default: any known account may query its own domain's data
	return nil
}

// Migrate runs the installed executor's migrate entry point after an
// Upgrade instruction commits, giving the new bundle a chance to rewrite
// existing permission tokens into its own schema (spec §4.G). The default
// builtin policy has no migration state, so this is a no-op unless a wasm
// executor is installed.
func (p *Policy) Migrate(bc *wsv.BlockContext, authority core.AccountId) error {
	version, wasmBytes := bc.WSV().InstalledExecutor()
	if p.sandbox == nil || version == 0 || len(wasmBytes) == 0 {
		return nil
	}
	ctx := vm.NewTxContext(bc, authority, bc.WSV().Height(), nil, defaultValidationGas, nil)
	result, err := p.sandbox.RunModule(uint64(version), wasmBytes, ctx)
	if err != nil {
		return fmt.Errorf("run executor migration: %w", err)
	}
	if !result.Pass {
		return fmt.Errorf("executor migration failed")
	}
	return nil
}

const defaultValidationGas = 10_000_000
