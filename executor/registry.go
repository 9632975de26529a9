// Package executor implements the executor policy (spec §4.G): the
// pluggable validation layer standing between the transaction queue and
// the block pipeline, deciding whether an authority may apply a given
// instruction against the current WSV. Generalises the teacher's
// vm.Registry self-registration pattern (vm/registry.go, now deleted) from
// a TxType-keyed Handler map to an InstructionKind-keyed Validator map.
package executor

import (
	"fmt"
	"sync"

	"github.com/tolelom/irohad/core"
)

// Validator inspects instr on behalf of authority and returns a non-nil
// error to deny it. Multiple validators may be registered for the same
// instruction kind; ValidateInstruction runs all of them and denies on the
// first failure (least-permissive-wins, spec §4.G).
type Validator func(pctx *ValidationContext, instr core.Instruction) error

// Registry holds the validators consulted for each leaf instruction kind.
type Registry struct {
	mu         sync.RWMutex
	validators map[core.InstructionKind][]Validator
}

func NewRegistry() *Registry {
	return &Registry{validators: make(map[core.InstructionKind][]Validator)}
}

// Register appends v to the validators run for kind.
func (r *Registry) Register(kind core.InstructionKind, v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[kind] = append(r.validators[kind], v)
}

// Validate runs every validator registered for instr.Kind, stopping at the
// first denial.
func (r *Registry) Validate(pctx *ValidationContext, instr core.Instruction) error {
	r.mu.RLock()
	vs := r.validators[instr.Kind]
	r.mu.RUnlock()
	if len(vs) == 0 {
		return fmt.Errorf("no validator registered for instruction kind %d", instr.Kind)
	}
	for _, v := range vs {
		if err := v(pctx, instr); err != nil {
			return err
		}
	}
	return nil
}
