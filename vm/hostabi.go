package vm

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"

	"github.com/wasmerio/wasmer-go/wasmer"
	"golang.org/x/time/rate"

	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/crypto"
	"github.com/tolelom/irohad/wsv"
)

func marshalJSON(v any) ([]byte, error)       { return json.Marshal(v) }
func unmarshalJSON(b []byte, v any) error     { return json.Unmarshal(b, v) }

// Context carries everything a single sandbox call needs from its caller:
// the block-scoped WSV context instructions mutate, the authority the
// guest executes as, and the gas/memory caps bounding the call (spec §4.F:
// "the only interface available to guest code is this fixed host ABI").
type Context struct {
	Block           *wsv.BlockContext
	Authority       core.AccountId
	TriggeringEvent *core.Event
	BlockHeight     uint64
	TxPayload       []byte
	Gas             *GasMeter
	LogLimiter      *rate.Limiter

	// ExecuteInstruction is invoked by the host for the execute_instruction
	// ABI call; it is supplied by the executor package so the sandbox never
	// depends on it directly (spec §4.G validates before §4.F executes).
	ExecuteInstruction func(core.Instruction, core.AccountId) error
	ExecuteQuery       func(queryName string, payload []byte) ([]byte, error)
}

// hostCtx is the per-instantiation state registerHost closes over; it owns
// the instance's linear memory once Execute discovers the "memory" export.
type hostCtx struct {
	ctx               *Context
	mem               *wasmer.Memory
	returnBuf         []byte
	resourceExhausted bool
	randomCalls       uint64 // per-instantiation get_random call counter
}

func (h *hostCtx) readBytes(ptr, length int32) ([]byte, error) {
	data := h.mem.Data()
	if ptr < 0 || length < 0 || int(ptr)+int(length) > len(data) {
		return nil, fmt.Errorf("guest pointer out of bounds")
	}
	out := make([]byte, length)
	copy(out, data[ptr:int(ptr)+int(length)])
	return out, nil
}

func (h *hostCtx) writeBytes(ptr int32, b []byte) error {
	data := h.mem.Data()
	if ptr < 0 || int(ptr)+len(b) > len(data) {
		return fmt.Errorf("guest pointer out of bounds")
	}
	copy(data[ptr:], b)
	return nil
}

func (h *hostCtx) charge(cost uint64) bool {
	if err := h.ctx.Gas.Consume(cost); err != nil {
		h.resourceExhausted = true
		return false
	}
	return true
}

// hostFn wraps a host ABI function with the shared failure convention: -1
// return on fault (bounds, gas exhaustion, malformed argument), 0 on
// success. Matches the wasmer-go registration pattern grounded on
// orbas1-Synnergy's registerHost (NewFunction/NewFunctionType/
// NewValueTypes over i32 params and an i32 result).
func hostFn(store *wasmer.Store, sig []wasmer.ValueKind, ret []wasmer.ValueKind, fn func(args []wasmer.Value) ([]wasmer.Value, error)) *wasmer.Function {
	ft := wasmer.NewFunctionType(wasmer.NewValueTypes(sig...), wasmer.NewValueTypes(ret...))
	return wasmer.NewFunction(store, ft, fn)
}

// registerHost builds the "env" import namespace the sandbox guest links
// against: execute_instruction, execute_query, get_authority,
// get_triggering_event, get_block_height, get_transaction_payload, log,
// dbg, get_random (spec §4.F host ABI surface).
func registerHost(store *wasmer.Store, h *hostCtx) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()

	i32 := wasmer.I32
	fns := map[string]wasmer.IntoExtern{
		"execute_instruction": hostFn(store, []wasmer.ValueKind{i32, i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
			if !h.charge(costExecuteInstruction) {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			ptr, length := args[0].I32(), args[1].I32()
			raw, err := h.readBytes(ptr, length)
			if err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			var instr core.Instruction
			if err := unmarshalJSON(raw, &instr); err != nil || h.ctx.ExecuteInstruction == nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			if err := h.ctx.ExecuteInstruction(instr, h.ctx.Authority); err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		}),

		"execute_query": hostFn(store, []wasmer.ValueKind{i32, i32, i32, i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
			if !h.charge(costExecuteQuery) {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			namePtr, nameLen := args[0].I32(), args[1].I32()
			payloadPtr, payloadLen := args[2].I32(), args[3].I32()
			name, err := h.readBytes(namePtr, nameLen)
			if err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			payload, err := h.readBytes(payloadPtr, payloadLen)
			if err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			if h.ctx.ExecuteQuery == nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			result, err := h.ctx.ExecuteQuery(string(name), payload)
			if err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			h.returnBuf = result
			return []wasmer.Value{wasmer.NewI32(int32(len(result)))}, nil
		}),

		"get_authority": hostFn(store, []wasmer.ValueKind{i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
			if !h.charge(costCheap) {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			b := []byte(h.ctx.Authority.String())
			if err := h.writeBytes(args[0].I32(), b); err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(int32(len(b)))}, nil
		}),

		"get_triggering_event": hostFn(store, []wasmer.ValueKind{i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
			if !h.charge(costCheap) {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			if h.ctx.TriggeringEvent == nil {
				return []wasmer.Value{wasmer.NewI32(0)}, nil
			}
			b, err := marshalJSON(h.ctx.TriggeringEvent)
			if err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			if err := h.writeBytes(args[0].I32(), b); err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(int32(len(b)))}, nil
		}),

		"get_block_height": hostFn(store, nil, []wasmer.ValueKind{wasmer.I64}, func(args []wasmer.Value) ([]wasmer.Value, error) {
			if !h.charge(costCheap) {
				return []wasmer.Value{wasmer.NewI64(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI64(int64(h.ctx.BlockHeight))}, nil
		}),

		"get_transaction_payload": hostFn(store, []wasmer.ValueKind{i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
			if !h.charge(costCheap) {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			if err := h.writeBytes(args[0].I32(), h.ctx.TxPayload); err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(int32(len(h.ctx.TxPayload)))}, nil
		}),

		"log": hostFn(store, []wasmer.ValueKind{i32, i32}, nil, func(args []wasmer.Value) ([]wasmer.Value, error) {
			return h.writeLog(args, false)
		}),

		"dbg": hostFn(store, []wasmer.ValueKind{i32, i32}, nil, func(args []wasmer.Value) ([]wasmer.Value, error) {
			return h.writeLog(args, true)
		}),

		"get_random": hostFn(store, []wasmer.ValueKind{i32, i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
			if !h.charge(costCheap) {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			ptr, length := args[0].I32(), args[1].I32()
			callIndex := h.randomCalls
			h.randomCalls++
			buf := deterministicRandom(h.ctx.BlockHeight, h.ctx.TxPayload, callIndex, length)
			if err := h.writeBytes(ptr, buf); err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(int32(len(buf)))}, nil
		}),
	}

	imports.Register("env", fns)
	return imports
}

// writeLog is shared by log/dbg. When ctx.LogLimiter is set, both draw
// from that one token bucket; when it is nil, dbg is dropped and log is
// written without any rate limit. NewTxContext and NewTriggerContext leave
// LogLimiter nil.
func (h *hostCtx) writeLog(args []wasmer.Value, debugOnly bool) ([]wasmer.Value, error) {
	if debugOnly && h.ctx.LogLimiter == nil {
		return nil, nil
	}
	if h.ctx.LogLimiter != nil && !h.ctx.LogLimiter.Allow() {
		return nil, nil
	}
	ptr, length := args[0].I32(), args[1].I32()
	msg, err := h.readBytes(ptr, length)
	if err != nil {
		return nil, nil
	}
	if debugOnly {
		log.Printf("[vm] dbg: %s", string(msg))
	} else {
		log.Printf("[vm] log: %s", string(msg))
	}
	return nil, nil
}

// deterministicRandom derives a random-looking buffer from
// (block height, transaction payload, call index) so every validating peer
// computes identical bytes for the same call (spec §4.F: replay must be
// bit-identical), while two different transactions — or two get_random
// calls within the same transaction — never collide on the same output.
func deterministicRandom(height uint64, txPayload []byte, callIndex uint64, length int32) []byte {
	seed := appendUint64(nil, height)
	seed = append(seed, crypto.HashBytes(txPayload)...)
	seed = appendUint64(seed, callIndex)
	seed = crypto.HashBytes(seed)
	out := make([]byte, 0, length)
	for int32(len(out)) < length {
		seed = crypto.HashBytes(seed)
		out = append(out, seed...)
	}
	return out[:length]
}

func appendUint64(b []byte, v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return append(b, buf...)
}

const (
	costCheap               = 10
	costExecuteInstruction  = 500
	costExecuteQuery        = 200
)
