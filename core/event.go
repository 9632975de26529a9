package core

// EventKind categorises the four event families spec §4.K names.
type EventKind byte

const (
	EventData EventKind = iota
	EventTime
	EventExecuteTrigger
	EventPipeline
)

// PipelineStatus is the subject of an EventPipeline event.
type PipelineStatus byte

const (
	StatusTransactionAccepted PipelineStatus = iota
	StatusTransactionRejected
	StatusBlockCommitted
)

// Event is a single occurrence produced during block execution: an entity
// mutation (EventData), a time tick tied to the block timestamp (EventTime),
// an explicit ExecuteTrigger instruction (EventExecuteTrigger), or a
// transaction/block status change (EventPipeline). Triggers match events
// against an EventFilter (core/trigger.go).
type Event struct {
	Kind            EventKind
	EntityId        string
	InstructionKind InstructionKind
	BlockHeight     uint64
	TransactionHash string
	Timestamp       int64
	Status          PipelineStatus
	Reason          string
}
