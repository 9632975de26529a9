package vm

import (
	"sync"

	"github.com/google/uuid"
	"github.com/tolelom/irohad/crypto"
	"github.com/wasmerio/wasmer-go/wasmer"
)

// Cache holds one compiled module at a time, keyed by version and a hash
// of the module's code, so a block full of transactions pays wasm
// compilation cost once rather than once per transaction (spec §4.F: "the
// cache amortises it"). A request for a different version or different
// code replaces the cached module rather than growing the cache.
type Cache struct {
	mu      sync.Mutex
	runtime *Runtime

	version  uint64
	store    *wasmer.Store
	module   *wasmer.Module
	wasmHash string
}

func NewCache(runtime *Runtime) *Cache {
	return &Cache{runtime: runtime}
}

// Compiled entry returned to a caller; id tags this particular
// instantiation for log correlation (spec §9: "every sandbox call carries
// a correlation id so operators can match a log line back to the
// transaction that produced it").
type Compiled struct {
	Store *wasmer.Store
	Module *wasmer.Module
	InstanceID string
}

// Get returns the compiled module for (version, wasmBytes), compiling and
// caching it on a miss. The caller (executor package, trigger engine) is
// the source of truth for which version and code are current.
func (c *Cache) Get(version uint64, wasmBytes []byte) (*Compiled, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := string(crypto.HashBytes(wasmBytes))
	if c.module == nil || c.version != version || c.wasmHash != hash {
		store, mod, err := c.runtime.Compile(wasmBytes)
		if err != nil {
			return nil, err
		}
		c.store = store
		c.module = mod
		c.version = version
		c.wasmHash = hash
	}

	return &Compiled{
		Store:      c.store,
		Module:     c.module,
		InstanceID: uuid.NewString(),
	}, nil
}

// Invalidate drops the cached module, forcing the next Get to recompile.
// Sandbox.OnExecutorUpgrade wraps it; nothing else in the node calls
// either. Get already recompiles when the requested version or code
// differs from the cached module.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.module = nil
	c.store = nil
	c.version = 0
}
