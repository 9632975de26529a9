package wsv

import (
	"fmt"
	"math/big"

	"github.com/tolelom/irohad/core"
)

// applyInstruction mutates w in place according to instr, after executor
// policy has already approved it (executor/policy.go calls into Apply
// before any state change, per spec §4.G composition rules). Composite
// instructions recurse; recursion depth is bounded by the caller
// (executor.MaxRecursionDepth), not here — wsv has no policy awareness.
func applyInstruction(w *WSV, instr core.Instruction, authority core.AccountId, blockHeight uint64, txHash string) (*core.Event, error) {
	switch instr.Kind {
	case core.InstrRegister:
		return applyRegister(w, instr.Register, blockHeight, txHash)
	case core.InstrUnregister:
		return applyUnregister(w, instr.Unregister, blockHeight, txHash)
	case core.InstrMint:
		return applyMint(w, instr.Mint, blockHeight, txHash)
	case core.InstrBurn:
		return applyBurn(w, instr.Burn, blockHeight, txHash)
	case core.InstrTransfer:
		return applyTransfer(w, instr.Transfer, blockHeight, txHash)
	case core.InstrGrant:
		return applyGrant(w, instr.Grant, blockHeight, txHash)
	case core.InstrRevoke:
		return applyRevoke(w, instr.Revoke, blockHeight, txHash)
	case core.InstrSetKeyValue:
		return applySetKV(w, instr.SetKV, blockHeight, txHash)
	case core.InstrUpgrade:
		return applyUpgrade(w, instr.Upgrade, blockHeight, txHash)
	case core.InstrExecuteTrigger:
		return &core.Event{Kind: core.EventExecuteTrigger, EntityId: instr.Execute.TriggerId.String(), BlockHeight: blockHeight, TransactionHash: txHash}, nil
	case core.InstrSequence:
		for _, sub := range instr.Sequence {
			if _, err := applyInstruction(w, sub, authority, blockHeight, txHash); err != nil {
				return nil, err
			}
		}
		return nil, nil
	case core.InstrIf:
		p := instr.If
		if p.Condition {
			return applyInstruction(w, p.Then, authority, blockHeight, txHash)
		} else if p.Else != nil {
			return applyInstruction(w, *p.Else, authority, blockHeight, txHash)
		}
		return nil, nil
	case core.InstrPair:
		if _, err := applyInstruction(w, instr.Pair.First, authority, blockHeight, txHash); err != nil {
			return nil, err
		}
		return applyInstruction(w, instr.Pair.Second, authority, blockHeight, txHash)
	default:
		return nil, fmt.Errorf("unknown instruction kind %d", instr.Kind)
	}
}

func dataEvent(kind core.InstructionKind, entityId string, height uint64, txHash string) *core.Event {
	return &core.Event{Kind: core.EventData, InstructionKind: kind, EntityId: entityId, BlockHeight: height, TransactionHash: txHash}
}

func applyRegister(w *WSV, p *core.RegisterPayload, height uint64, txHash string) (*core.Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch p.Kind {
	case core.RegisterDomain:
		id := p.Domain.Id.String()
		if _, exists := w.domains[id]; exists {
			return nil, fmt.Errorf("domain %s already registered", id)
		}
		w.domains[id] = p.Domain
		return dataEvent(core.InstrRegister, id, height, txHash), nil
	case core.RegisterAccount:
		id := p.Account.Id.String()
		if _, exists := w.accounts[id]; exists {
			return nil, fmt.Errorf("account %s already registered", id)
		}
		dom, ok := w.domains[p.Account.Id.Domain.String()]
		if !ok {
			return nil, fmt.Errorf("domain %s does not exist", p.Account.Id.Domain)
		}
		w.accounts[id] = p.Account
		dom.AddAccount(p.Account.Id)
		return dataEvent(core.InstrRegister, id, height, txHash), nil
	case core.RegisterAssetDefinition:
		id := p.AssetDefinition.Id.String()
		if _, exists := w.assetDefs[id]; exists {
			return nil, fmt.Errorf("asset definition %s already registered", id)
		}
		dom, ok := w.domains[p.AssetDefinition.Id.Domain.String()]
		if !ok {
			return nil, fmt.Errorf("domain %s does not exist", p.AssetDefinition.Id.Domain)
		}
		w.assetDefs[id] = p.AssetDefinition
		dom.AddAssetDefinition(p.AssetDefinition.Id)
		return dataEvent(core.InstrRegister, id, height, txHash), nil
	case core.RegisterAsset:
		id := p.Asset.Id.String()
		if _, exists := w.assets[id]; exists {
			return nil, fmt.Errorf("asset %s already registered", id)
		}
		w.assets[id] = p.Asset
		return dataEvent(core.InstrRegister, id, height, txHash), nil
	case core.RegisterRole:
		id := p.Role.Id.String()
		if _, exists := w.roles[id]; exists {
			return nil, fmt.Errorf("role %s already registered", id)
		}
		w.roles[id] = p.Role
		return dataEvent(core.InstrRegister, id, height, txHash), nil
	case core.RegisterTrigger:
		id := p.Trigger.Id.String()
		if _, exists := w.triggers[id]; exists {
			return nil, fmt.Errorf("trigger %s already registered", id)
		}
		w.triggers[id] = p.Trigger
		return dataEvent(core.InstrRegister, id, height, txHash), nil
	case core.RegisterPeer:
		w.peers[p.Peer.Key.Hex()] = *p.Peer
		return dataEvent(core.InstrRegister, p.Peer.Address, height, txHash), nil
	default:
		return nil, fmt.Errorf("unknown registrable kind %d", p.Kind)
	}
}

func applyUnregister(w *WSV, p *core.UnregisterPayload, height uint64, txHash string) (*core.Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch p.Kind {
	case core.RegisterDomain:
		id := p.DomainId.String()
		dom, ok := w.domains[id]
		if !ok {
			return nil, fmt.Errorf("domain %s does not exist", id)
		}
		for _, acc := range dom.AccountIds {
			cascadeUnregisterAccountLocked(w, acc)
		}
		delete(w.domains, id)
		return dataEvent(core.InstrUnregister, id, height, txHash), nil
	case core.RegisterAccount:
		id := p.AccountId.String()
		if _, ok := w.accounts[id]; !ok {
			return nil, fmt.Errorf("account %s does not exist", id)
		}
		cascadeUnregisterAccountLocked(w, p.AccountId)
		if dom, ok := w.domains[p.AccountId.Domain.String()]; ok {
			dom.RemoveAccount(p.AccountId)
		}
		return dataEvent(core.InstrUnregister, id, height, txHash), nil
	case core.RegisterAssetDefinition:
		id := p.AssetDefId.String()
		if _, ok := w.assetDefs[id]; !ok {
			return nil, fmt.Errorf("asset definition %s does not exist", id)
		}
		delete(w.assetDefs, id)
		return dataEvent(core.InstrUnregister, id, height, txHash), nil
	case core.RegisterRole:
		id := p.RoleId.String()
		if _, ok := w.roles[id]; !ok {
			return nil, fmt.Errorf("role %s does not exist", id)
		}
		delete(w.roles, id)
		return dataEvent(core.InstrUnregister, id, height, txHash), nil
	case core.RegisterTrigger:
		id := p.TriggerId.String()
		if _, ok := w.triggers[id]; !ok {
			return nil, fmt.Errorf("trigger %s does not exist", id)
		}
		delete(w.triggers, id)
		return dataEvent(core.InstrUnregister, id, height, txHash), nil
	case core.RegisterPeer:
		key := p.Peer.Key.Hex()
		if _, ok := w.peers[key]; !ok {
			return nil, fmt.Errorf("peer %s does not exist", key)
		}
		delete(w.peers, key)
		return dataEvent(core.InstrUnregister, p.Peer.Address, height, txHash), nil
	default:
		return nil, fmt.Errorf("unknown registrable kind %d", p.Kind)
	}
}

// cascadeUnregisterAccountLocked removes triggers authored by account,
// per spec §3: "unregistering an account removes triggers whose authority
// is that account". Caller holds w.mu.
func cascadeUnregisterAccountLocked(w *WSV, account core.AccountId) {
	delete(w.accounts, account.String())
	for id, t := range w.triggers {
		if t.Authority.Equal(account) {
			delete(w.triggers, id)
		}
	}
}

func applyMint(w *WSV, p *core.MintPayload, height uint64, txHash string) (*core.Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	defId := p.AssetId.Definition.String()
	def, ok := w.assetDefs[defId]
	if !ok {
		return nil, fmt.Errorf("asset definition %s does not exist", defId)
	}
	if def.Mintability == core.MintNot {
		return nil, fmt.Errorf("asset definition %s is not mintable", defId)
	}
	if !p.Value.MatchesDefinition(def) {
		return nil, fmt.Errorf("mint value type does not match definition %s", defId)
	}
	assetId := p.AssetId.String()
	asset, exists := w.assets[assetId]
	if !exists {
		asset = core.NewAsset(p.AssetId, zeroValue(def.ValueType))
		w.assets[assetId] = asset
	}
	newValue, err := asset.Value.Add(p.Value)
	if err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}
	asset.Value = newValue
	if p.Value.Type == core.ValueNumeric {
		def.TotalIssued.Add(def.TotalIssued, bigFromUint64(p.Value.Numeric))
	} else if p.Value.Type == core.ValueBig {
		def.TotalIssued.Add(def.TotalIssued, p.Value.Big)
	}
	if def.Mintability == core.MintOnce {
		def.Mintability = core.MintNot
	}
	return dataEvent(core.InstrMint, assetId, height, txHash), nil
}

func applyBurn(w *WSV, p *core.BurnPayload, height uint64, txHash string) (*core.Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	assetId := p.AssetId.String()
	asset, ok := w.assets[assetId]
	if !ok {
		return nil, fmt.Errorf("asset %s does not exist", assetId)
	}
	newValue, err := asset.Value.Sub(p.Value)
	if err != nil {
		return nil, fmt.Errorf("burn: %w", err)
	}
	asset.Value = newValue
	return dataEvent(core.InstrBurn, assetId, height, txHash), nil
}

func applyTransfer(w *WSV, p *core.TransferPayload, height uint64, txHash string) (*core.Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	srcId := p.AssetId.String()
	src, ok := w.assets[srcId]
	if !ok {
		return nil, fmt.Errorf("asset %s does not exist", srcId)
	}
	// Destination need not already be a registered account: a transfer to
	// an unseen account recognises its asset balance without requiring a
	// prior Register (spec S2). The account itself stays unregistered
	// until a separate Register instruction creates it.
	remaining, err := src.Value.Sub(p.Value)
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	dstAssetId := core.NewAssetId(p.AssetId.Definition, p.Destination)
	dst, exists := w.assets[dstAssetId.String()]
	if !exists {
		def := w.assetDefs[p.AssetId.Definition.String()]
		valueType := p.Value.Type
		if def != nil {
			valueType = def.ValueType
		}
		dst = core.NewAsset(dstAssetId, zeroValue(valueType))
		w.assets[dstAssetId.String()] = dst
	}
	newDstValue, err := dst.Value.Add(p.Value)
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	src.Value = remaining
	dst.Value = newDstValue
	return dataEvent(core.InstrTransfer, dstAssetId.String(), height, txHash), nil
}

func applyGrant(w *WSV, p *core.GrantPayload, height uint64, txHash string) (*core.Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	acc, ok := w.accounts[p.Account.String()]
	if !ok {
		return nil, fmt.Errorf("account %s does not exist", p.Account)
	}
	if p.RoleId != nil {
		role, ok := w.roles[p.RoleId.String()]
		if !ok {
			return nil, fmt.Errorf("role %s does not exist", p.RoleId)
		}
		for _, tok := range role.Permissions {
			if _, ok := w.permissionDefined(tok.Definition); !ok {
				return nil, fmt.Errorf("role %s references unknown permission token %s (privilege laundering)", p.RoleId, tok.Definition)
			}
		}
		acc.GrantRole(*p.RoleId)
		return dataEvent(core.InstrGrant, p.Account.String(), height, txHash), nil
	}
	if p.Permission != nil {
		acc.GrantPermission(*p.Permission)
		return dataEvent(core.InstrGrant, p.Account.String(), height, txHash), nil
	}
	return nil, fmt.Errorf("grant instruction names neither a role nor a permission")
}

func applyRevoke(w *WSV, p *core.RevokePayload, height uint64, txHash string) (*core.Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	acc, ok := w.accounts[p.Account.String()]
	if !ok {
		return nil, fmt.Errorf("account %s does not exist", p.Account)
	}
	if p.RoleId != nil {
		acc.RevokeRole(*p.RoleId)
		return dataEvent(core.InstrRevoke, p.Account.String(), height, txHash), nil
	}
	if p.Permission != nil {
		acc.RevokePermission(*p.Permission)
		return dataEvent(core.InstrRevoke, p.Account.String(), height, txHash), nil
	}
	return nil, fmt.Errorf("revoke instruction names neither a role nor a permission")
}

// permissionDefined reports whether a permission definition id is known to
// the WSV — i.e. granted to at least one role or account already.
// Callers hold w.mu.
func (w *WSV) permissionDefined(def core.PermissionDefinitionId) (core.PermissionDefinitionId, bool) {
	for _, role := range w.roles {
		for _, tok := range role.Permissions {
			if tok.Definition == def {
				return def, true
			}
		}
	}
	for _, acc := range w.accounts {
		for _, tok := range acc.Permissions {
			if tok.Definition == def {
				return def, true
			}
		}
	}
	return def, false
}

func applySetKV(w *WSV, p *core.SetKeyValuePayload, height uint64, txHash string) (*core.Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if acc, ok := w.accounts[p.Subject]; ok {
		acc.Metadata[p.Key] = p.Value
		return dataEvent(core.InstrSetKeyValue, p.Subject, height, txHash), nil
	}
	if dom, ok := w.domains[p.Subject]; ok {
		dom.Metadata[p.Key] = p.Value
		return dataEvent(core.InstrSetKeyValue, p.Subject, height, txHash), nil
	}
	if def, ok := w.assetDefs[p.Subject]; ok {
		def.Metadata[p.Key] = p.Value
		return dataEvent(core.InstrSetKeyValue, p.Subject, height, txHash), nil
	}
	return nil, fmt.Errorf("set_key_value: unknown subject %s", p.Subject)
}

func applyUpgrade(w *WSV, p *core.UpgradePayload, height uint64, txHash string) (*core.Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.executorVersion = p.Version
	w.executorWasm = p.Wasm
	return dataEvent(core.InstrUpgrade, fmt.Sprintf("executor-v%d", p.Version), height, txHash), nil
}

func zeroValue(t core.AssetValueType) core.AssetValue {
	switch t {
	case core.ValueNumeric:
		return core.NumericValue(0)
	case core.ValueBig:
		return core.BigValue(big.NewInt(0))
	default:
		return core.StoreValue(make(map[string]any))
	}
}

func bigFromUint64(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}
