package queue

import (
	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/wsv"
)

// Snapshot returns every currently queued transaction as a single ordered
// slice (signer order, then per-signer creation order), suitable for
// wrapping in a wsv.Query for paginated client listing (spec §4.E
// pagination contract, shared with wsv.Query).
func (q *Queue) Snapshot() []*core.Transaction {
	q.globalMu.Lock()
	defer q.globalMu.Unlock()
	q.signerMu.Lock()
	defer q.signerMu.Unlock()

	out := make([]*core.Transaction, 0, q.total)
	for _, signer := range q.signerOrder {
		for _, e := range q.bySigner[signer] {
			out = append(out, e.tx)
		}
	}
	return out
}

// NewPendingQuery opens a paginated view over the queue's current contents.
func (q *Queue) NewPendingQuery() *wsv.Query[*core.Transaction] {
	return wsv.NewQuery(q.Snapshot())
}
