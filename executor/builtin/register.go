package builtin

import (
	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/executor"
)

var (
	permRegisterDomain          = permDef("can_register_domain")
	permRegisterAccount         = permDef("can_register_account")
	permRegisterAssetDefinition = permDef("can_register_asset_definition")
	permRegisterAsset           = permDef("can_register_asset")
	permRegisterRole            = permDef("can_register_role")
	permRegisterTrigger         = permDef("can_register_trigger")
	permRegisterPeer            = permDef("can_register_peer")

	permUnregisterDomain          = permDef("can_unregister_domain")
	permUnregisterAccount         = permDef("can_unregister_account")
	permUnregisterAssetDefinition = permDef("can_unregister_asset_definition")
	permUnregisterRole            = permDef("can_unregister_role")
	permUnregisterTrigger         = permDef("can_unregister_trigger")
	permUnregisterPeer            = permDef("can_unregister_peer")
)

func validateRegister(pctx *executor.ValidationContext, instr core.Instruction) error {
	p := instr.Register
	switch p.Kind {
	case core.RegisterDomain:
		if hasPermission(pctx, permRegisterDomain, nil, nil) {
			return nil
		}
		return deny("authority %s lacks can_register_domain", pctx.Authority.String())

	case core.RegisterAccount:
		domain, ok := pctx.Block.WSV().GetDomain(p.Account.Id.Domain)
		if !ok {
			return deny("register account: unknown domain %s", p.Account.Id.Domain.String())
		}
		if hasPermission(pctx, permRegisterAccount, nil, &domain.Owner) {
			return nil
		}
		return deny("authority %s lacks can_register_account in domain %s", pctx.Authority.String(), domain.Id.String())

	case core.RegisterAssetDefinition:
		domain, ok := pctx.Block.WSV().GetDomain(p.AssetDefinition.Id.Domain)
		if !ok {
			return deny("register asset definition: unknown domain %s", p.AssetDefinition.Id.Domain.String())
		}
		if hasPermission(pctx, permRegisterAssetDefinition, nil, &domain.Owner) {
			return nil
		}
		return deny("authority %s lacks can_register_asset_definition in domain %s", pctx.Authority.String(), domain.Id.String())

	case core.RegisterAsset:
		owner := p.Asset.Id.Account
		if hasPermission(pctx, permRegisterAsset, &owner, nil) {
			return nil
		}
		return deny("authority %s lacks can_register_asset for %s", pctx.Authority.String(), owner.String())

	case core.RegisterRole:
		if hasPermission(pctx, permRegisterRole, nil, nil) {
			return nil
		}
		return deny("authority %s lacks can_register_role", pctx.Authority.String())

	case core.RegisterTrigger:
		if hasPermission(pctx, permRegisterTrigger, nil, nil) {
			return nil
		}
		return deny("authority %s lacks can_register_trigger", pctx.Authority.String())

	case core.RegisterPeer:
		if hasPermission(pctx, permRegisterPeer, nil, nil) {
			return nil
		}
		return deny("authority %s lacks can_register_peer", pctx.Authority.String())
	}
	return deny("unknown registrable kind %d", p.Kind)
}

func validateUnregister(pctx *executor.ValidationContext, instr core.Instruction) error {
	p := instr.Unregister
	switch p.Kind {
	case core.RegisterDomain:
		if hasPermission(pctx, permUnregisterDomain, nil, nil) {
			return nil
		}
		return deny("authority %s lacks can_unregister_domain", pctx.Authority.String())

	case core.RegisterAccount:
		domain, ok := pctx.Block.WSV().GetDomain(p.AccountId.Domain)
		if !ok {
			return deny("unregister account: unknown domain %s", p.AccountId.Domain.String())
		}
		if hasPermission(pctx, permUnregisterAccount, nil, &domain.Owner) {
			return nil
		}
		return deny("authority %s lacks can_unregister_account in domain %s", pctx.Authority.String(), domain.Id.String())

	case core.RegisterAssetDefinition:
		domain, ok := pctx.Block.WSV().GetDomain(p.AssetDefId.Domain)
		if !ok {
			return deny("unregister asset definition: unknown domain %s", p.AssetDefId.Domain.String())
		}
		if hasPermission(pctx, permUnregisterAssetDefinition, nil, &domain.Owner) {
			return nil
		}
		return deny("authority %s lacks can_unregister_asset_definition in domain %s", pctx.Authority.String(), domain.Id.String())

	case core.RegisterRole:
		if hasPermission(pctx, permUnregisterRole, nil, nil) {
			return nil
		}
		return deny("authority %s lacks can_unregister_role", pctx.Authority.String())

	case core.RegisterTrigger:
		if hasPermission(pctx, permUnregisterTrigger, nil, nil) {
			return nil
		}
		return deny("authority %s lacks can_unregister_trigger", pctx.Authority.String())

	case core.RegisterPeer:
		if hasPermission(pctx, permUnregisterPeer, nil, nil) {
			return nil
		}
		return deny("authority %s lacks can_unregister_peer", pctx.Authority.String())
	}
	return deny("unknown registrable kind %d", p.Kind)
}
