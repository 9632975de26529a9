package core

// RepeatPolicy bounds how many times a Trigger may fire.
type RepeatPolicy struct {
	Indefinite bool
	Remaining  uint32 // meaningful only if !Indefinite
}

func RepeatExactly(n uint32) RepeatPolicy { return RepeatPolicy{Remaining: n} }
func RepeatIndefinitely() RepeatPolicy    { return RepeatPolicy{Indefinite: true} }

// Exhausted reports whether the policy has no fires left.
func (p RepeatPolicy) Exhausted() bool {
	return !p.Indefinite && p.Remaining == 0
}

// Consume decrements the remaining count, a no-op for an indefinite policy.
func (p RepeatPolicy) Consume() RepeatPolicy {
	if p.Indefinite || p.Remaining == 0 {
		return p
	}
	p.Remaining--
	return p
}

// ActionKind distinguishes a trigger's executable payload.
type ActionKind byte

const (
	ActionInstructions ActionKind = iota
	ActionWasm
)

// Action is the executable body of a Trigger: either a list of instructions
// run directly, or a WebAssembly blob run in the sandbox (spec §3).
type Action struct {
	Kind         ActionKind
	Instructions []Instruction
	Wasm         []byte
}

// EventFilter narrows which events a Trigger matches (spec §4.K: data,
// time, execute-trigger, pipeline events).
type EventFilter struct {
	Kind       EventKind
	EntityId   string // matches events whose subject stringifies to this id; empty matches any
	InstrKind  InstructionKind
}

func (f EventFilter) Matches(ev Event) bool {
	if f.Kind != ev.Kind {
		return false
	}
	if f.EntityId != "" && f.EntityId != ev.EntityId {
		return false
	}
	if f.Kind == EventData && f.InstrKind != ev.InstructionKind {
		return false
	}
	return true
}

// Trigger is a named, authority-scoped, event-matched executable hook
// (spec §3/§4.K).
type Trigger struct {
	Id        TriggerId
	Action    Action
	Repeat    RepeatPolicy
	Authority AccountId
	Filter    EventFilter
}

func NewTrigger(id TriggerId, action Action, repeat RepeatPolicy, authority AccountId, filter EventFilter) *Trigger {
	return &Trigger{Id: id, Action: action, Repeat: repeat, Authority: authority, Filter: filter}
}
