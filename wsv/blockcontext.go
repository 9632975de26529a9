package wsv

import (
	"fmt"

	"github.com/tolelom/irohad/core"
)

// BlockContext is a block-scoped transaction over the WSV (spec §4.C): it
// borrows a cloned working set for the duration of a candidate block,
// collects a journal of applied events, and is finally either Committed
// (the clone replaces the live WSV) or Discarded (the clone is dropped).
// No suspension is allowed between taking the clone and Commit/Discard
// (spec §5) — callers must treat BlockContext as synchronous, single-
// goroutine-owned for its lifetime.
type BlockContext struct {
	base    *WSV
	working *WSV
	journal []core.Event
	done    bool
}

// Begin clones base into a new working set and returns a BlockContext over
// it.
func Begin(base *WSV) (*BlockContext, error) {
	clone, err := base.Clone()
	if err != nil {
		return nil, fmt.Errorf("begin block context: %w", err)
	}
	return &BlockContext{base: base, working: clone}, nil
}

// WSV exposes the working set for read-only query evaluation during
// validation.
func (bc *BlockContext) WSV() *WSV { return bc.working }

// Journal returns the events recorded by successful Apply calls so far.
func (bc *BlockContext) Journal() []core.Event { return append([]core.Event(nil), bc.journal...) }

// Apply mutates the working WSV according to instruction, emitting Event
// records on success. It either fully succeeds or fails with no state
// change (spec §4.C): the working set is snapshotted before dispatch and
// restored on failure, so a composite instruction whose later part fails
// leaves no trace of its earlier parts.
func (bc *BlockContext) Apply(instr core.Instruction, authority core.AccountId, blockHeight uint64, txHash string) error {
	if bc.done {
		return fmt.Errorf("block context already committed or discarded")
	}
	snapshot, err := bc.working.Clone()
	if err != nil {
		return fmt.Errorf("snapshot working set: %w", err)
	}
	ev, err := applyInstruction(bc.working, instr, authority, blockHeight, txHash)
	if err != nil {
		bc.working.replaceFrom(snapshot)
		return err
	}
	if ev != nil {
		bc.journal = append(bc.journal, *ev)
	}
	return nil
}

// Commit replaces the base WSV's tables with the working set's and marks
// the context done. It is the only way a BlockContext's mutations become
// visible to subsequent readers.
func (bc *BlockContext) Commit(blockHeight uint64, blockHash string) {
	if bc.done {
		return
	}
	bc.working.mu.Lock()
	bc.working.height = blockHeight
	bc.working.latestBlockHash = blockHash
	bc.working.mu.Unlock()
	bc.base.replaceFrom(bc.working)
	bc.done = true
}

// Discard drops the working set without affecting base.
func (bc *BlockContext) Discard() {
	bc.done = true
	bc.working = nil
}
