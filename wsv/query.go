package wsv

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrUnknownCursor is returned when a client presents a cursor the server
// did not issue, or that no longer matches the server's next-expected
// cursor (spec §4.E/§8 scenario S5).
var ErrUnknownCursor = fmt.Errorf("unknown cursor")

// Query is one paginated result stream. Each Query keeps its own cursor
// counter (next), so cursor values are monotonic within a stream and
// streams stay independent of each other.
type Query[T any] struct {
	mu      sync.Mutex
	items   []T
	next    atomic.Uint64
	offsets map[uint64]int
}

// NewQuery opens a query over a fixed, already-evaluated result set — the
// "consistent snapshot" spec §4.C requires is the caller's responsibility
// (typically a WSV.Clone() or a BlockContext's working set read before any
// further mutation).
func NewQuery[T any](items []T) *Query[T] {
	q := &Query[T]{items: items, offsets: map[uint64]int{0: 0}}
	return q
}

// Batched returns up to fetchSize items starting at cursor, and the cursor
// to present for the next batch (nil when exhausted). cursor must be 0 for
// the first call, or a value previously returned by Batched.
func (q *Query[T]) Batched(cursor uint64, fetchSize int) (batch []T, nextCursor *uint64, err error) {
	if fetchSize <= 0 {
		fetchSize = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	offset, ok := q.offsets[cursor]
	if !ok {
		return nil, nil, ErrUnknownCursor
	}
	end := offset + fetchSize
	if end > len(q.items) {
		end = len(q.items)
	}
	batch = q.items[offset:end]
	if end >= len(q.items) {
		delete(q.offsets, cursor)
		return batch, nil, nil
	}
	next := q.next.Add(1)
	q.offsets[next] = end
	delete(q.offsets, cursor)
	return batch, &next, nil
}
