package builtin

import (
	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/executor"
)

var permExecuteTrigger = permDef("can_execute_trigger")

// validateExecuteTrigger requires the authority to either be the trigger's
// own registered authority (it may always invoke its own hook) or hold an
// explicit can_execute_trigger grant.
func validateExecuteTrigger(pctx *executor.ValidationContext, instr core.Instruction) error {
	p := instr.Execute
	trigger, ok := pctx.Block.WSV().GetTrigger(p.TriggerId)
	if !ok {
		return deny("execute trigger: unknown trigger %s", p.TriggerId.String())
	}
	if trigger.Authority.Equal(pctx.Authority) {
		return nil
	}
	if hasPermission(pctx, permExecuteTrigger, nil, nil) {
		return nil
	}
	return deny("authority %s lacks can_execute_trigger for %s", pctx.Authority.String(), p.TriggerId.String())
}

func validateUpgrade(pctx *executor.ValidationContext, instr core.Instruction) error {
	if hasPermission(pctx, permUpgradeExecutor, nil, nil) {
		return nil
	}
	return deny("authority %s lacks can_upgrade_executor", pctx.Authority.String())
}

var permUpgradeExecutor = permDef("can_upgrade_executor")
