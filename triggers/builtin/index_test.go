package builtin

import (
	"testing"

	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/events"
	"github.com/tolelom/irohad/internal/testutil"
)

// TestAssetIndexTracksMintAndTransfer verifies mint/transfer events append
// the destination asset id to the owner's index entry, deduplicated.
func TestAssetIndexTracksMintAndTransfer(t *testing.T) {
	db := testutil.NewMemDB()
	emitter := events.NewEmitter()
	idx := NewAssetIndex(db, emitter)

	owner := "ed25519:aabbcc@wonderland"
	assetId := "rose#wonderland#" + owner

	emitter.Emit(core.Event{Kind: core.EventData, InstructionKind: core.InstrMint, EntityId: assetId})
	emitter.Emit(core.Event{Kind: core.EventData, InstructionKind: core.InstrTransfer, EntityId: assetId})

	got, err := idx.GetAssetsByOwner(owner)
	if err != nil {
		t.Fatalf("GetAssetsByOwner: %v", err)
	}
	if len(got) != 1 || got[0] != assetId {
		t.Errorf("got %v, want single entry %q (duplicate mint+transfer should not double-add)", got, assetId)
	}
}

// TestAssetIndexRemovesOnBurn verifies a burn event removes the asset id
// from its owner's index entry.
func TestAssetIndexRemovesOnBurn(t *testing.T) {
	db := testutil.NewMemDB()
	emitter := events.NewEmitter()
	idx := NewAssetIndex(db, emitter)

	owner := "ed25519:aabbcc@wonderland"
	assetId := "rose#wonderland#" + owner

	emitter.Emit(core.Event{Kind: core.EventData, InstructionKind: core.InstrMint, EntityId: assetId})
	emitter.Emit(core.Event{Kind: core.EventData, InstructionKind: core.InstrBurn, EntityId: assetId})

	got, err := idx.GetAssetsByOwner(owner)
	if err != nil {
		t.Fatalf("GetAssetsByOwner: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want empty after burn", got)
	}
}

// TestAssetIndexIgnoresMalformedEntityId verifies an EntityId that doesn't
// parse into def#domain#owner is silently skipped rather than indexed
// under a garbage owner key.
func TestAssetIndexIgnoresMalformedEntityId(t *testing.T) {
	db := testutil.NewMemDB()
	emitter := events.NewEmitter()
	idx := NewAssetIndex(db, emitter)

	emitter.Emit(core.Event{Kind: core.EventData, InstructionKind: core.InstrMint, EntityId: "not-a-valid-asset-id"})

	got, err := idx.GetAssetsByOwner("not-a-valid-asset-id")
	if err != nil {
		t.Fatalf("GetAssetsByOwner: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("malformed entity id should not be indexed, got %v", got)
	}
}

// TestAssetIndexGetAssetsByOwnerUnknownOwnerReturnsEmpty verifies an owner
// with no recorded assets returns an empty, non-error result.
func TestAssetIndexGetAssetsByOwnerUnknownOwnerReturnsEmpty(t *testing.T) {
	db := testutil.NewMemDB()
	emitter := events.NewEmitter()
	idx := NewAssetIndex(db, emitter)

	got, err := idx.GetAssetsByOwner("nobody@wonderland")
	if err != nil {
		t.Fatalf("GetAssetsByOwner: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}
