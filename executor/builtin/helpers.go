// Package builtin is the default permission-token executor policy used
// until a custom wasm executor bundle is installed (spec §4.G), grounded
// on orbas1-Synnergy core/compliance.go's permission-check-before-mutate
// pattern generalised from its fixed rule set to the spec's
// PermissionToken/PassCondition model (core/role.go).
package builtin

import (
	"fmt"

	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/executor"
)

// hasPermission reports whether pctx.Authority holds (directly or through
// a granted role) a permission token for def whose pass condition holds
// given the optional asset-owner/domain-owner context.
func hasPermission(pctx *executor.ValidationContext, def core.PermissionDefinitionId, assetOwner, domainOwner *core.AccountId) bool {
	account, ok := pctx.Block.WSV().GetAccount(pctx.Authority)
	if !ok {
		return false
	}
	if tokenGrants(account.Permissions, def, pctx.Authority, assetOwner, domainOwner) {
		return true
	}
	for _, roleId := range account.Roles {
		role, ok := pctx.Block.WSV().GetRole(roleId)
		if !ok {
			continue
		}
		if tokenGrants(role.Permissions, def, pctx.Authority, assetOwner, domainOwner) {
			return true
		}
	}
	return false
}

func tokenGrants(tokens []core.PermissionToken, def core.PermissionDefinitionId, authority core.AccountId, assetOwner, domainOwner *core.AccountId) bool {
	for _, tok := range tokens {
		if tok.Definition != def {
			continue
		}
		switch tok.PassCondition {
		case core.PassAlways:
			return true
		case core.PassAssetOwner:
			if assetOwner != nil && assetOwner.Equal(authority) {
				return true
			}
		case core.PassDomainOwner:
			if domainOwner != nil && domainOwner.Equal(authority) {
				return true
			}
		case core.PassGenesisOnly:
			// Never passes post-genesis validation; genesis transactions
			// are committed directly by the block pipeline bootstrap
			// without going through the executor (spec §4.G).
		}
	}
	return false
}

func deny(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

func permDef(name string) core.PermissionDefinitionId {
	id, err := core.NewPermissionDefinitionId(name)
	if err != nil {
		panic(fmt.Sprintf("builtin: invalid permission definition name %q: %v", name, err))
	}
	return id
}
