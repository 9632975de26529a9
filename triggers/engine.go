// Package triggers implements the event-matching/scheduling engine spec
// §4.K describes: every committed block's events are matched against the
// registered trigger roster, matches are queued in a deterministic order,
// and their actions run against the following block's BlockContext rather
// than re-entering matching within the same block (spec §4.K: "deferred to
// the next block to bound per-block work"). Supersedes the teacher's
// indexer package's ad hoc event-driven list maintenance (indexer/indexer.go);
// the owner-asset secondary index it built is reimplemented as one builtin
// trigger consumer, triggers/builtin/index.go.
package triggers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/events"
	"github.com/tolelom/irohad/vm"
	"github.com/tolelom/irohad/wsv"
)

// defaultGasBudget bounds a single trigger action's sandbox call, same
// order of magnitude as a transaction's validate_transaction budget since
// a trigger action is, in effect, one more instruction sequence applied
// against the block (spec §4.F).
const defaultGasBudget = 1_000_000

type pendingFire struct {
	triggerId string
	event     core.Event
}

// Engine subscribes to every event kind on construction and, for each
// event, matches it against the trigger roster currently registered in
// wsv. Matches accumulate until ApplyPending runs them against the next
// block being built.
type Engine struct {
	wsv     *wsv.WSV
	sandbox *vm.Sandbox

	mu        sync.Mutex
	pending   []pendingFire
	fireCount map[string]uint32 // triggerId -> fires consumed so far
}

// NewEngine creates an Engine bound to w and subscribes it to emitter for
// every event kind triggers can match.
func NewEngine(w *wsv.WSV, emitter *events.Emitter, sandbox *vm.Sandbox) *Engine {
	e := &Engine{wsv: w, sandbox: sandbox, fireCount: make(map[string]uint32)}
	for _, kind := range []core.EventKind{core.EventData, core.EventTime, core.EventExecuteTrigger, core.EventPipeline} {
		emitter.Subscribe(kind, e.onEvent)
	}
	return e
}

func (e *Engine) onEvent(ev core.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.wsv.AllTriggers() {
		if e.exhaustedLocked(t) {
			continue
		}
		if t.Filter.Matches(ev) {
			e.pending = append(e.pending, pendingFire{triggerId: t.Id.String(), event: ev})
		}
	}
}

func (e *Engine) exhaustedLocked(t *core.Trigger) bool {
	if t.Repeat.Indefinite {
		return false
	}
	return e.fireCount[t.Id.String()] >= t.Repeat.Remaining
}

func (e *Engine) drain() []pendingFire {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pending) == 0 {
		return nil
	}
	out := e.pending
	sort.SliceStable(out, func(i, j int) bool { return out[i].triggerId < out[j].triggerId })
	e.pending = nil
	return out
}

// ApplyPending runs every trigger action matched since the last call,
// against bc, in ascending trigger-id order (spec §4.K: "queues matched
// triggers in a deterministic order (by trigger id)"). A trigger
// unregistered since it was matched, or already exhausted, is silently
// skipped rather than failing the block.
func (e *Engine) ApplyPending(bc *wsv.BlockContext, height uint64) error {
	for _, fire := range e.drain() {
		triggerId, err := core.NewTriggerId(fire.triggerId)
		if err != nil {
			continue
		}
		t, ok := e.wsv.GetTrigger(triggerId)
		if !ok {
			continue
		}
		e.mu.Lock()
		exhausted := e.exhaustedLocked(t)
		e.mu.Unlock()
		if exhausted {
			continue
		}
		if err := e.runAction(bc, t, fire.event, height); err != nil {
			return fmt.Errorf("trigger %s action failed: %w", fire.triggerId, err)
		}
		e.mu.Lock()
		e.fireCount[fire.triggerId]++
		e.mu.Unlock()
	}
	return nil
}

func (e *Engine) runAction(bc *wsv.BlockContext, t *core.Trigger, ev core.Event, height uint64) error {
	switch t.Action.Kind {
	case core.ActionInstructions:
		for _, instr := range t.Action.Instructions {
			if err := bc.Apply(instr, t.Authority, height, ev.TransactionHash); err != nil {
				return err
			}
		}
		return nil
	case core.ActionWasm:
		ctx := vm.NewTriggerContext(bc, t.Authority, height, ev, defaultGasBudget)
		res, err := e.sandbox.RunModule(0, t.Action.Wasm, ctx)
		if err != nil {
			return err
		}
		if !res.Pass {
			return fmt.Errorf("trigger action rejected: %w", res.Err)
		}
		return nil
	default:
		return fmt.Errorf("unknown action kind %d", t.Action.Kind)
	}
}
