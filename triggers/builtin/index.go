// Package builtin holds secondary-index trigger consumers wired in ahead
// of any WSV-registered trigger: subsystems that want a denormalised view
// over committed state without paying a full WSV scan per query. Adapted
// from the teacher's indexer/indexer.go (owner -> asset-ids list
// maintenance on mint/burn/transfer events), generalised from that
// package's flat game-domain event strings to core.Event/core.InstructionKind.
package builtin

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/events"
	"github.com/tolelom/irohad/storage"
)

const prefixOwnerAssets = "idx:owner:asset:"

// AssetIndex maintains an owner-account -> held-asset-id secondary index,
// updated as mint/transfer/burn events commit. It is best-effort: a
// transfer event only names the destination asset id (wsv/apply.go emits
// no "from" event distinct from the transfer itself), so a source account
// whose balance reaches zero is not proactively removed from the index
// until it is independently queried against current WSV state by the
// caller.
type AssetIndex struct {
	db storage.DB
}

// NewAssetIndex creates an AssetIndex backed by db and subscribes it to
// the mint/burn/transfer data events on emitter.
func NewAssetIndex(db storage.DB, emitter *events.Emitter) *AssetIndex {
	idx := &AssetIndex{db: db}
	emitter.Subscribe(core.EventData, idx.onDataEvent)
	return idx
}

// GetAssetsByOwner returns the asset ids recorded against owner, an
// account id's text form ("<key>@<domain>").
func (idx *AssetIndex) GetAssetsByOwner(owner string) ([]string, error) {
	return idx.getList(prefixOwnerAssets + owner)
}

func (idx *AssetIndex) onDataEvent(ev core.Event) {
	switch ev.InstructionKind {
	case core.InstrMint, core.InstrTransfer:
		owner, ok := ownerOf(ev.EntityId)
		if !ok {
			return
		}
		if err := idx.addToList(prefixOwnerAssets+owner, ev.EntityId); err != nil {
			log.Printf("[triggers/builtin] asset index write failed (owner=%s asset=%s): %v", owner, ev.EntityId, err)
		}
	case core.InstrBurn:
		owner, ok := ownerOf(ev.EntityId)
		if !ok {
			return
		}
		if err := idx.removeFromList(prefixOwnerAssets+owner, ev.EntityId); err != nil {
			log.Printf("[triggers/builtin] asset index remove failed (owner=%s asset=%s): %v", owner, ev.EntityId, err)
		}
	}
}

// ownerOf extracts the account portion of an asset id's text form
// ("<def-name>#<def-domain>#<account>").
func ownerOf(assetId string) (string, bool) {
	parts := strings.SplitN(assetId, "#", 3)
	if len(parts) != 3 || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

func (idx *AssetIndex) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("asset index unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *AssetIndex) addToList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return fmt.Errorf("read list: %w", err)
	}
	for _, id := range ids {
		if id == value {
			return nil
		}
	}
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}

func (idx *AssetIndex) removeFromList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return fmt.Errorf("read list: %w", err)
	}
	if ids == nil {
		return nil
	}
	filtered := ids[:0]
	for _, id := range ids {
		if id != value {
			filtered = append(filtered, id)
		}
	}
	data, err := json.Marshal(filtered)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
