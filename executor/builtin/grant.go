package builtin

import (
	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/executor"
)

var (
	permGrantRole         = permDef("can_grant_role")
	permGrantPermission   = permDef("can_grant_permission")
	permRevokeRole        = permDef("can_revoke_role")
	permRevokePermission  = permDef("can_revoke_permission")
)

// validateGrant requires the authority to hold can_grant_role/
// can_grant_permission — prevents an unprivileged account laundering a
// permission it never held into a role it controls.
func validateGrant(pctx *executor.ValidationContext, instr core.Instruction) error {
	p := instr.Grant
	if p.RoleId != nil {
		if hasPermission(pctx, permGrantRole, nil, nil) {
			return nil
		}
		return deny("authority %s lacks can_grant_role", pctx.Authority.String())
	}
	if p.Permission != nil {
		if !hasPermission(pctx, permGrantPermission, nil, nil) {
			return deny("authority %s lacks can_grant_permission", pctx.Authority.String())
		}
		if !authorityCarries(pctx, p.Permission.Definition) {
			return deny("authority %s cannot grant permission %s it does not itself hold", pctx.Authority.String(), p.Permission.Definition.String())
		}
		return nil
	}
	return deny("grant instruction carries neither a role nor a permission")
}

func validateRevoke(pctx *executor.ValidationContext, instr core.Instruction) error {
	p := instr.Revoke
	if p.RoleId != nil {
		if hasPermission(pctx, permRevokeRole, nil, nil) {
			return nil
		}
		return deny("authority %s lacks can_revoke_role", pctx.Authority.String())
	}
	if p.Permission != nil {
		if hasPermission(pctx, permRevokePermission, nil, nil) {
			return nil
		}
		return deny("authority %s lacks can_revoke_permission", pctx.Authority.String())
	}
	return deny("revoke instruction carries neither a role nor a permission")
}

// authorityCarries reports whether pctx.Authority's own account already
// holds a permission token for def, directly or via a role (spec §4.G:
// "an account may never grant a permission broader than one it holds
// itself").
func authorityCarries(pctx *executor.ValidationContext, def core.PermissionDefinitionId) bool {
	account, ok := pctx.Block.WSV().GetAccount(pctx.Authority)
	if !ok {
		return false
	}
	for _, tok := range account.Permissions {
		if tok.Definition == def {
			return true
		}
	}
	for _, roleId := range account.Roles {
		role, ok := pctx.Block.WSV().GetRole(roleId)
		if !ok {
			continue
		}
		for _, tok := range role.Permissions {
			if tok.Definition == def {
				return true
			}
		}
	}
	return false
}
