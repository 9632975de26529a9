package builtin

import (
	"github.com/tolelom/irohad/core"
	"github.com/tolelom/irohad/executor"
)

// Register wires every builtin validator into registry. executor.NewPolicy
// does not call it; cmd/node/main.go calls it on the registry it passes to
// NewPolicy.
func Register(registry *executor.Registry) {
	registry.Register(core.InstrRegister, validateRegister)
	registry.Register(core.InstrUnregister, validateUnregister)
	registry.Register(core.InstrMint, validateMint)
	registry.Register(core.InstrBurn, validateBurn)
	registry.Register(core.InstrTransfer, validateTransfer)
	registry.Register(core.InstrGrant, validateGrant)
	registry.Register(core.InstrRevoke, validateRevoke)
	registry.Register(core.InstrSetKeyValue, validateSetKeyValue)
	registry.Register(core.InstrUpgrade, validateUpgrade)
	registry.Register(core.InstrExecuteTrigger, validateExecuteTrigger)
}
