// Package queue implements the transaction queue: admission control,
// per-signer fairness, and TTL/future-timestamp rejection (spec §4.E),
// generalising the teacher's core/mempool.go single-map mempool into the
// two-tier per-signer-FIFO-plus-global-bound structure the spec names.
package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/tolelom/irohad/core"
)

const (
	// DefaultGlobalCapacity bounds the queue's total size.
	DefaultGlobalCapacity = 10_000
	// DefaultSignerCapacity bounds any one signer's backlog, enforcing
	// per-signer throttling independent of global load.
	DefaultSignerCapacity = 256
	// DefaultFutureThresholdMs is the window a transaction's creation
	// timestamp may lead the queue's clock by.
	DefaultFutureThresholdMs = int64(5 * time.Minute / time.Millisecond)
)

type entry struct {
	tx      *core.Transaction
	hash    string
	enqueue int64 // monotonic sequence for creation-time ordering within a signer
}

// Queue is the bounded, per-signer-fair, TTL-aware transaction admission
// queue (spec §4.E). Locking discipline matches spec §5: a global lock
// guards capacity counters and is always acquired before any per-signer
// lock.
type Queue struct {
	globalMu sync.Mutex
	signerMu sync.Mutex

	globalCapacity int
	signerCapacity int
	total          int

	bySigner map[string][]entry
	byHash   map[string]struct{}
	// signerOrder preserves round-robin draining order across signers.
	signerOrder []string
	nextSeq     int64

	// recentlyCommitted bounds replay-protection window to each tx's own
	// TTL (spec §9 Open Question (b)).
	recentlyCommitted map[string]int64 // hash -> commit time ms
}

func New(globalCapacity, signerCapacity int) *Queue {
	if globalCapacity <= 0 {
		globalCapacity = DefaultGlobalCapacity
	}
	if signerCapacity <= 0 {
		signerCapacity = DefaultSignerCapacity
	}
	return &Queue{
		globalCapacity:    globalCapacity,
		signerCapacity:    signerCapacity,
		bySigner:          make(map[string][]entry),
		byHash:            make(map[string]struct{}),
		recentlyCommitted: make(map[string]int64),
	}
}

// Add validates cheap checks and admits tx, or rejects it per spec §4.E
// enqueue policy. The queue has no access to account state, so a multisig
// transaction below its account's quorum is admitted here regardless;
// quorum is checked later, during block construction, where it is
// rejected outright rather than returned to the queue (spec §9 Open
// Question (a) — see DESIGN.md).
func (q *Queue) Add(tx *core.Transaction, nowMs int64) error {
	hash, err := tx.Hash()
	if err != nil {
		return fmt.Errorf("hash transaction: %w", err)
	}
	if err := tx.VerifySignatures(); err != nil {
		return core.Rejection{Reason: core.RejectSignatureInvalid, Message: err.Error()}
	}
	if tx.IsFuture(nowMs, DefaultFutureThresholdMs) {
		return core.Rejection{Reason: core.RejectFutureTimestamp, Message: "creation timestamp too far in the future"}
	}
	if tx.IsExpired(nowMs) {
		return core.Rejection{Reason: core.RejectExpired, Message: "transaction TTL exceeded"}
	}

	q.globalMu.Lock()
	defer q.globalMu.Unlock()

	if q.total >= q.globalCapacity {
		return fmt.Errorf("global queue full (%d/%d)", q.total, q.globalCapacity)
	}
	if _, dup := q.byHash[hash]; dup {
		return fmt.Errorf("transaction %s already queued", hash)
	}
	if commitTime, committed := q.recentlyCommitted[hash]; committed && nowMs < commitTime+tx.TTLMs {
		return fmt.Errorf("transaction %s already committed within its TTL window", hash)
	}

	signer := tx.Authority.String()

	q.signerMu.Lock()
	defer q.signerMu.Unlock()

	if len(q.bySigner[signer]) >= q.signerCapacity {
		return fmt.Errorf("signer %s queue full (%d/%d)", signer, len(q.bySigner[signer]), q.signerCapacity)
	}
	if _, exists := q.bySigner[signer]; !exists {
		q.signerOrder = append(q.signerOrder, signer)
	}
	q.nextSeq++
	q.bySigner[signer] = append(q.bySigner[signer], entry{tx: tx, hash: hash, enqueue: q.nextSeq})
	q.byHash[hash] = struct{}{}
	q.total++
	return nil
}

// Drain returns up to max entries in creation-time order, round-robin
// across signers, silently dropping expired transactions (spec §4.E).
func (q *Queue) Drain(max int, nowMs int64) []*core.Transaction {
	q.globalMu.Lock()
	defer q.globalMu.Unlock()
	q.signerMu.Lock()
	defer q.signerMu.Unlock()

	var out []*core.Transaction
	progress := true
	for len(out) < max && progress {
		progress = false
		for _, signer := range q.signerOrder {
			queue := q.bySigner[signer]
			for len(queue) > 0 {
				head := queue[0]
				queue = queue[1:]
				q.bySigner[signer] = queue
				delete(q.byHash, head.hash)
				q.total--
				if head.tx.IsExpired(nowMs) {
					continue // silently dropped
				}
				out = append(out, head.tx)
				progress = true
				break
			}
			if len(out) >= max {
				break
			}
		}
	}
	q.compactSignerOrder()
	return out
}

func (q *Queue) compactSignerOrder() {
	out := q.signerOrder[:0]
	for _, s := range q.signerOrder {
		if len(q.bySigner[s]) > 0 {
			out = append(out, s)
		} else {
			delete(q.bySigner, s)
		}
	}
	q.signerOrder = out
}

// MarkCommitted records a transaction hash as committed so a resubmission
// within its TTL window is rejected as a duplicate (replay prevention,
// spec §3 invariant: "a transaction hash appears in at most one committed
// block").
func (q *Queue) MarkCommitted(hash string, nowMs int64, ttlMs int64) {
	q.globalMu.Lock()
	defer q.globalMu.Unlock()
	q.recentlyCommitted[hash] = nowMs
	for h, t := range q.recentlyCommitted {
		if nowMs >= t+ttlMs {
			delete(q.recentlyCommitted, h)
		}
	}
}

// Size returns the total number of queued transactions.
func (q *Queue) Size() int {
	q.globalMu.Lock()
	defer q.globalMu.Unlock()
	return q.total
}
