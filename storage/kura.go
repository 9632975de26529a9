// Package storage persists the canonical chain. Kura (storage/kura.go) is
// the append-only block log spec §4.D/§6 describes; LevelDB (leveldb.go)
// backs the node's secondary asset index rather than the block log itself.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/tolelom/irohad/core"
)

const (
	dataFileName  = "blocks.data"
	indexFileName = "blocks.index"
	metaFileName  = "metadata.json"

	// indexRecordSize is the fixed width of one blocks.index entry:
	// offset (u64) + length (u64), spec §6.
	indexRecordSize = 16

	// magicFrame precedes every record in blocks.data, letting a replay
	// distinguish a genuine record boundary from a torn write (spec §4.D).
	magicFrame uint32 = 0x4b555241 // "KURA"
)

// Metadata is the content of metadata.json (spec §6).
type Metadata struct {
	GenesisHash string `json:"genesis_hash"`
	StoreVersion uint32 `json:"store_version"`
}

// ReplayMode selects how Open verifies the existing log before resuming
// append (spec §4.D).
type ReplayMode int

const (
	// ReplayStrict decodes every record and verifies the hash chain. Kura
	// does not re-verify block signatures or transaction validity: the WSV
	// is rebuilt afterwards by blockpipeline.Pipeline.Replay, which
	// re-applies accepted transactions without re-running the executor
	// policy.
	ReplayStrict ReplayMode = iota
	// ReplayFast performs the same record decoding and chain-linkage check
	// as ReplayStrict; a record that fails to decode is fatal in both modes.
	ReplayFast
)

// Kura is the append-only segmented block log. A single pair of
// (blocks.data, blocks.index) is used — "one or more fixed-capacity
// segment files" per spec §4.D, with segmentation left as a capacity knob
// (CacheSize) rather than multiple files, since the spec does not mandate
// a segment-rollover policy and single-file append already satisfies the
// O(1) random-access and atomic-append requirements.
type Kura struct {
	mu    sync.Mutex
	dir   string
	data  *os.File
	index *os.File
	meta  Metadata

	// index maps height -> (offset, length) in blocks.data.
	offsets map[uint64]indexEntry

	// cache holds the most recently committed blocks, avoiding a disk read
	// for the common case of consensus/replay re-reading recent history
	// (supplemented from original_source/core/benches/kura.rs).
	cache     map[uint64]*core.Block
	cacheSize int
	cacheLRU  []uint64
}

type indexEntry struct {
	Offset uint64
	Length uint64
}

// Open opens or creates a Kura store at dir, replaying the existing log
// according to mode. cacheSize bounds the in-memory recent-block cache.
func Open(dir string, genesisHash string, mode ReplayMode, cacheSize int) (*Kura, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create kura dir: %w", err)
	}
	if cacheSize <= 0 {
		cacheSize = 64
	}

	dataPath := filepath.Join(dir, dataFileName)
	indexPath := filepath.Join(dir, indexFileName)
	metaPath := filepath.Join(dir, metaFileName)

	data, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dataFileName, err)
	}
	index, err := os.OpenFile(indexPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		data.Close()
		return nil, fmt.Errorf("open %s: %w", indexFileName, err)
	}

	k := &Kura{
		dir:       dir,
		data:      data,
		index:     index,
		offsets:   make(map[uint64]indexEntry),
		cache:     make(map[uint64]*core.Block),
		cacheSize: cacheSize,
	}

	if meta, err := loadMetadata(metaPath); err == nil {
		k.meta = meta
	} else {
		k.meta = Metadata{GenesisHash: genesisHash, StoreVersion: 1}
		if err := k.writeMetadata(metaPath); err != nil {
			data.Close()
			index.Close()
			return nil, fmt.Errorf("write metadata: %w", err)
		}
	}

	if err := k.loadIndex(); err != nil {
		data.Close()
		index.Close()
		return nil, fmt.Errorf("load index: %w", err)
	}

	if err := k.replay(mode); err != nil {
		data.Close()
		index.Close()
		return nil, fmt.Errorf("replay: %w", err)
	}

	return k, nil
}

func loadMetadata(path string) (Metadata, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, err
	}
	var m Metadata
	if err := json.Unmarshal(b, &m); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

func (k *Kura) writeMetadata(path string) error {
	b, err := json.MarshalIndent(k.meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// loadIndex reads the fixed-width index file into memory, truncating a
// torn (partial) final record rather than failing (spec §4.D).
func (k *Kura) loadIndex() error {
	info, err := k.index.Stat()
	if err != nil {
		return err
	}
	n := info.Size() / indexRecordSize
	remainder := info.Size() % indexRecordSize
	if remainder != 0 {
		// Torn write: truncate to the last complete record.
		if err := k.index.Truncate(n * indexRecordSize); err != nil {
			return err
		}
	}
	buf := make([]byte, indexRecordSize)
	for h := uint64(0); h < uint64(n); h++ {
		if _, err := k.index.ReadAt(buf, int64(h)*indexRecordSize); err != nil {
			return err
		}
		k.offsets[h] = indexEntry{
			Offset: binary.BigEndian.Uint64(buf[0:8]),
			Length: binary.BigEndian.Uint64(buf[8:16]),
		}
	}
	return nil
}

// replay decodes every stored record and verifies chain linkage, in either
// mode. Kura has no WSV reference, so rebuilding state is left to
// blockpipeline.Pipeline.Replay, which cmd/node runs after the store opens.
func (k *Kura) replay(mode ReplayMode) error {
	var prevHash string
	for h := uint64(0); h < uint64(len(k.offsets)); h++ {
		block, err := k.readAt(h)
		if err != nil {
			return fmt.Errorf("checksum mismatch at height %d: %w", h, err)
		}
		if h > 0 && block.Header.PreviousBlockHash != prevHash {
			return fmt.Errorf("chain linkage broken at height %d", h)
		}
		hash, err := block.ComputeHash()
		if err != nil {
			return fmt.Errorf("compute hash at height %d: %w", h, err)
		}
		prevHash = hash
	}
	return nil
}

// record is the on-disk encoding: magic, length, version, JSON body. No
// SCALE codec exists anywhere in the retrieved corpus (see DESIGN.md); the
// "scale-encoded block" the spec names is realised here as length-prefixed
// JSON under a version byte, matching the envelope convention core.Envelope
// defines for every other wire/persisted message.
func encodeRecord(block *core.Block) ([]byte, error) {
	body, err := json.Marshal(block)
	if err != nil {
		return nil, err
	}
	envelope := core.EncodeEnvelope(body)
	var out []byte
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], magicFrame)
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(envelope)))
	out = append(out, hdr[:]...)
	out = append(out, envelope...)
	return out, nil
}

func decodeRecord(raw []byte) (*core.Block, error) {
	if len(raw) < 8 {
		return nil, fmt.Errorf("record too short")
	}
	magic := binary.BigEndian.Uint32(raw[0:4])
	if magic != magicFrame {
		return nil, fmt.Errorf("bad frame magic 0x%x", magic)
	}
	length := binary.BigEndian.Uint32(raw[4:8])
	if int(length) != len(raw)-8 {
		return nil, fmt.Errorf("record length mismatch: header says %d, have %d", length, len(raw)-8)
	}
	body, err := core.DecodeEnvelope(raw[8:])
	if err != nil {
		return nil, err
	}
	var block core.Block
	if err := json.Unmarshal(body, &block); err != nil {
		return nil, fmt.Errorf("unmarshal block: %w", err)
	}
	return &block, nil
}

// Append writes block to the end of the log: data first (fsynced), then
// the index entry (fsynced) — spec §4.D's atomic-append ordering, so a
// crash between the two leaves the index one record behind the data file,
// which loadIndex's torn-write handling and the next Append's offset
// computation both tolerate.
func (k *Kura) Append(block *core.Block) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	height := block.Header.Height
	if _, exists := k.offsets[height]; exists {
		return fmt.Errorf("height %d already present in store", height)
	}
	if height != uint64(len(k.offsets)) {
		return fmt.Errorf("out-of-order append: height %d, expected %d", height, len(k.offsets))
	}

	raw, err := encodeRecord(block)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	offset, err := k.data.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seek data file: %w", err)
	}
	if _, err := k.data.Write(raw); err != nil {
		return fmt.Errorf("write data record (fatal, storage error): %w", err)
	}
	if err := k.data.Sync(); err != nil {
		return fmt.Errorf("fsync data file (fatal): %w", err)
	}

	entry := indexEntry{Offset: uint64(offset), Length: uint64(len(raw))}
	var buf [indexRecordSize]byte
	binary.BigEndian.PutUint64(buf[0:8], entry.Offset)
	binary.BigEndian.PutUint64(buf[8:16], entry.Length)
	if _, err := k.index.WriteAt(buf[:], int64(height)*indexRecordSize); err != nil {
		return fmt.Errorf("write index record (fatal): %w", err)
	}
	if err := k.index.Sync(); err != nil {
		return fmt.Errorf("fsync index file (fatal): %w", err)
	}

	k.offsets[height] = entry
	k.putCache(height, block)
	return nil
}

func (k *Kura) readAt(height uint64) (*core.Block, error) {
	entry, ok := k.offsets[height]
	if !ok {
		return nil, core.ErrNotFound
	}
	raw := make([]byte, entry.Length)
	if _, err := k.data.ReadAt(raw, int64(entry.Offset)); err != nil {
		return nil, fmt.Errorf("read data record (fatal): %w", err)
	}
	return decodeRecord(raw)
}

// GetBlockByHeight returns the block at height, consulting the cache first.
func (k *Kura) GetBlockByHeight(height uint64) (*core.Block, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if b, ok := k.cache[height]; ok {
		return b, nil
	}
	block, err := k.readAt(height)
	if err != nil {
		return nil, err
	}
	k.putCache(height, block)
	return block, nil
}

// GetBlock looks a block up by its header hash, scanning heights from the
// tip backward (acceptable for O(1)-amortised recent lookups via the
// cache; full scans only occur for cold, very old hashes).
func (k *Kura) GetBlock(hash string) (*core.Block, error) {
	k.mu.Lock()
	height := uint64(len(k.offsets))
	k.mu.Unlock()
	for h := height; h > 0; h-- {
		block, err := k.GetBlockByHeight(h - 1)
		if err != nil {
			continue
		}
		blockHash, err := block.ComputeHash()
		if err == nil && blockHash == hash {
			return block, nil
		}
	}
	return nil, core.ErrNotFound
}

// GetTip returns the hash of the highest committed block, or "" if empty.
func (k *Kura) GetTip() (string, error) {
	k.mu.Lock()
	height := uint64(len(k.offsets))
	k.mu.Unlock()
	if height == 0 {
		return "", nil
	}
	block, err := k.GetBlockByHeight(height - 1)
	if err != nil {
		return "", err
	}
	return block.ComputeHash()
}

// CommitBlock appends block to the log (the WSV/consensus layers have
// already committed the state transition by the time Kura is called).
func (k *Kura) CommitBlock(block *core.Block) error {
	return k.Append(block)
}

// Height returns the number of blocks currently stored.
func (k *Kura) Height() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return uint64(len(k.offsets))
}

func (k *Kura) putCache(height uint64, block *core.Block) {
	if _, exists := k.cache[height]; !exists {
		k.cacheLRU = append(k.cacheLRU, height)
		if len(k.cacheLRU) > k.cacheSize {
			evict := k.cacheLRU[0]
			k.cacheLRU = k.cacheLRU[1:]
			delete(k.cache, evict)
		}
	}
	k.cache[height] = block
}

// Close flushes and closes the underlying files.
func (k *Kura) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	var errs []error
	if err := k.data.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := k.index.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("close kura: %v", errs)
	}
	return nil
}

// GenesisHash returns the genesis hash recorded in metadata.json.
func (k *Kura) GenesisHash() string { return k.meta.GenesisHash }
