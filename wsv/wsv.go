// Package wsv implements the World State View: the single mutable value
// that owns every world entity (spec §4.C), generalising the teacher's
// storage/statedb.go single-domain register table to one table per entity
// kind in the Iroha-style data model.
package wsv

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/crypto"
)

func init() {
	// Metadata fields are declared as map[string]any; gob requires the
	// concrete types that can appear in such an interface slot to be
	// registered up front. This covers the JSON-ish scalar types genesis
	// documents and instruction payloads use for metadata values.
	gob.Register(core.AssetValue{})
	gob.Register("")
	gob.Register(int64(0))
	gob.Register(uint64(0))
	gob.Register(float64(0))
	gob.Register(false)
	gob.Register([]byte(nil))
	gob.Register([]any(nil))
	gob.Register(map[string]any(nil))
}

// WSV is the authoritative in-memory state. All mutation happens through a
// BlockContext; WSV itself only exposes read accessors and the primitives
// BlockContext needs to clone, commit, or discard.
type WSV struct {
	mu sync.RWMutex

	domains   map[string]*core.Domain
	accounts  map[string]*core.Account
	assetDefs map[string]*core.AssetDefinition
	assets    map[string]*core.Asset
	roles     map[string]*core.Role
	triggers  map[string]*core.Trigger
	peers     map[string]core.Peer

	height          uint64
	latestBlockHash string
	executorVersion uint32
	executorWasm    []byte
}

func New() *WSV {
	return &WSV{
		domains:   make(map[string]*core.Domain),
		accounts:  make(map[string]*core.Account),
		assetDefs: make(map[string]*core.AssetDefinition),
		assets:    make(map[string]*core.Asset),
		roles:     make(map[string]*core.Role),
		triggers:  make(map[string]*core.Trigger),
		peers:     make(map[string]core.Peer),
	}
}

// --- read accessors (consistent snapshot semantics are provided by the
// caller taking a BlockContext or Query, not by these direct getters) ---

func (w *WSV) GetDomain(id core.DomainId) (*core.Domain, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	d, ok := w.domains[id.String()]
	return d, ok
}

func (w *WSV) GetAccount(id core.AccountId) (*core.Account, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	a, ok := w.accounts[id.String()]
	return a, ok
}

func (w *WSV) GetAssetDefinition(id core.AssetDefinitionId) (*core.AssetDefinition, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	d, ok := w.assetDefs[id.String()]
	return d, ok
}

func (w *WSV) GetAsset(id core.AssetId) (*core.Asset, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	a, ok := w.assets[id.String()]
	return a, ok
}

func (w *WSV) GetRole(id core.RoleId) (*core.Role, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	r, ok := w.roles[id.String()]
	return r, ok
}

func (w *WSV) GetTrigger(id core.TriggerId) (*core.Trigger, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	t, ok := w.triggers[id.String()]
	return t, ok
}

// AllTriggers returns every registered trigger, sorted by id. The trigger
// engine matches events against this list in this order so trigger
// execution is deterministic across peers (spec §4.K).
func (w *WSV) AllTriggers() []*core.Trigger {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*core.Trigger, 0, len(w.triggers))
	for _, t := range w.triggers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id.String() < out[j].Id.String() })
	return out
}

func (w *WSV) PeerSet() []core.Peer {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]core.Peer, 0, len(w.peers))
	for _, p := range w.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

func (w *WSV) Height() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.height
}

func (w *WSV) LatestBlockHash() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latestBlockHash
}

func (w *WSV) InstalledExecutor() (version uint32, wasm []byte) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.executorVersion, w.executorWasm
}

// Clone returns a deep copy of w for use as a block-execution context's
// working set. A gob round-trip is used instead of field-by-field copying:
// the entity graph is plain id-keyed maps (never pointer cycles, per spec
// §9 design note), so gob's generic encoder is a safe and compact way to
// deep-copy it without hand-maintaining a copy function per entity kind as
// the data model grows.
func (w *WSV) Clone() (*WSV, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	snapshot := wsvSnapshot{
		Domains:         w.domains,
		Accounts:        w.accounts,
		AssetDefs:       w.assetDefs,
		Assets:          w.assets,
		Roles:           w.roles,
		Triggers:        w.triggers,
		Peers:           w.peers,
		Height:          w.height,
		LatestBlockHash: w.latestBlockHash,
		ExecutorVersion: w.executorVersion,
		ExecutorWasm:    w.executorWasm,
	}
	if err := enc.Encode(snapshot); err != nil {
		return nil, fmt.Errorf("encode wsv snapshot: %w", err)
	}

	var restored wsvSnapshot
	dec := gob.NewDecoder(&buf)
	if err := dec.Decode(&restored); err != nil {
		return nil, fmt.Errorf("decode wsv snapshot: %w", err)
	}

	clone := New()
	clone.domains = restored.Domains
	clone.accounts = restored.Accounts
	clone.assetDefs = restored.AssetDefs
	clone.assets = restored.Assets
	clone.roles = restored.Roles
	clone.triggers = restored.Triggers
	clone.peers = restored.Peers
	clone.height = restored.Height
	clone.latestBlockHash = restored.LatestBlockHash
	clone.executorVersion = restored.ExecutorVersion
	clone.executorWasm = restored.ExecutorWasm
	return clone, nil
}

type wsvSnapshot struct {
	Domains         map[string]*core.Domain
	Accounts        map[string]*core.Account
	AssetDefs       map[string]*core.AssetDefinition
	Assets          map[string]*core.Asset
	Roles           map[string]*core.Role
	Triggers        map[string]*core.Trigger
	Peers           map[string]core.Peer
	Height          uint64
	LatestBlockHash string
	ExecutorVersion uint32
	ExecutorWasm    []byte
}

// replaceFrom atomically swaps w's tables for other's, the commit step a
// BlockContext performs once a candidate block is accepted.
func (w *WSV) replaceFrom(other *WSV) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.domains = other.domains
	w.accounts = other.accounts
	w.assetDefs = other.assetDefs
	w.assets = other.assets
	w.roles = other.roles
	w.triggers = other.triggers
	w.peers = other.peers
	w.height = other.height
	w.latestBlockHash = other.latestBlockHash
	w.executorVersion = other.executorVersion
	w.executorWasm = other.executorWasm
}

// ComputeRoot hashes the full entity set deterministically, used to compare
// WSV state across peers (spec §8 invariant 7: "two honest peers at height
// h, their WSV serialises to the same hash").
func (w *WSV) ComputeRoot() string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var buf bytes.Buffer
	writeSorted(&buf, w.domains)
	writeSorted(&buf, w.accounts)
	writeSorted(&buf, w.assetDefs)
	writeSorted(&buf, w.assets)
	writeSorted(&buf, w.roles)
	writeSorted(&buf, w.triggers)
	return crypto.TaggedHashHex(crypto.TagWSV, buf.Bytes())
}

func writeSorted[V any](buf *bytes.Buffer, m map[string]V) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	enc := json.NewEncoder(buf)
	for _, k := range keys {
		buf.WriteString(k)
		_ = enc.Encode(m[k])
	}
}
