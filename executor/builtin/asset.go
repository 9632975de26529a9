package builtin

import (
	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/executor"
)

var (
	permMintAsset     = permDef("can_mint_asset")
	permBurnAsset     = permDef("can_burn_asset")
	permTransferAsset = permDef("can_transfer_asset")
	permSetKeyValue   = permDef("can_set_key_value")
)

// validateMint allows a mint only to an authority holding a can_mint_asset
// token whose pass condition holds with the asset's account as owner
// (spec §4.G, §3 Mintability). Domain ownership alone grants nothing.
func validateMint(pctx *executor.ValidationContext, instr core.Instruction) error {
	p := instr.Mint
	owner := p.AssetId.Account
	if hasPermission(pctx, permMintAsset, &owner, nil) {
		return nil
	}
	return deny("authority %s lacks can_mint_asset for %s", pctx.Authority.String(), p.AssetId.String())
}

func validateBurn(pctx *executor.ValidationContext, instr core.Instruction) error {
	p := instr.Burn
	owner := p.AssetId.Account
	if hasPermission(pctx, permBurnAsset, &owner, nil) {
		return nil
	}
	return deny("authority %s lacks can_burn_asset for %s", pctx.Authority.String(), p.AssetId.String())
}

// validateTransfer requires the authority to either own the source asset
// or hold an explicit can_transfer_asset grant scoped to it.
func validateTransfer(pctx *executor.ValidationContext, instr core.Instruction) error {
	p := instr.Transfer
	source := p.AssetId.Account
	if pctx.Authority.Equal(source) {
		return nil
	}
	if hasPermission(pctx, permTransferAsset, &source, nil) {
		return nil
	}
	return deny("authority %s lacks can_transfer_asset for %s", pctx.Authority.String(), p.AssetId.String())
}

// validateSetKeyValue requires the authority to be the subject itself or
// hold an explicit can_set_key_value grant; a domain owner gets no extra
// access to domain or asset-definition metadata.
func validateSetKeyValue(pctx *executor.ValidationContext, instr core.Instruction) error {
	p := instr.SetKV

	if pctx.Authority.String() == p.Subject {
		return nil
	}
	if hasPermission(pctx, permSetKeyValue, nil, nil) {
		return nil
	}
	return deny("authority %s lacks can_set_key_value for subject %s", pctx.Authority.String(), p.Subject)
}
