package core

// InstructionKind tags the variant held by an Instruction. Register through
// ExecuteTrigger are the leaf instructions spec §3/§4.G name; Sequence, If,
// and Pair are the composite forms validate_instruction visits recursively.
type InstructionKind byte

const (
	InstrRegister InstructionKind = iota
	InstrUnregister
	InstrMint
	InstrBurn
	InstrTransfer
	InstrGrant
	InstrRevoke
	InstrSetKeyValue
	InstrUpgrade
	InstrExecuteTrigger
	InstrSequence
	InstrIf
	InstrPair
)

// RegistrableKind names which world entity a Register/Unregister
// instruction targets.
type RegistrableKind byte

const (
	RegisterDomain RegistrableKind = iota
	RegisterAccount
	RegisterAssetDefinition
	RegisterAsset
	RegisterRole
	RegisterTrigger
	RegisterPeer
)

// Instruction is a tagged union over the instruction set spec §3 and §4.G
// describe. Exactly one of the typed fields is populated, selected by Kind.
type Instruction struct {
	Kind InstructionKind

	Register   *RegisterPayload
	Unregister *UnregisterPayload
	Mint       *MintPayload
	Burn       *BurnPayload
	Transfer   *TransferPayload
	Grant      *GrantPayload
	Revoke     *RevokePayload
	SetKV      *SetKeyValuePayload
	Upgrade    *UpgradePayload
	Execute    *ExecuteTriggerPayload

	Sequence []Instruction
	If       *IfPayload
	Pair     *PairPayload
}

type RegisterPayload struct {
	Kind            RegistrableKind
	Domain          *Domain
	Account         *Account
	AssetDefinition *AssetDefinition
	Asset           *Asset
	Role            *Role
	Trigger         *Trigger
	Peer            *Peer
}

type UnregisterPayload struct {
	Kind     RegistrableKind
	DomainId DomainId
	AccountId AccountId
	AssetDefId AssetDefinitionId
	RoleId   RoleId
	TriggerId TriggerId
	Peer     Peer
}

type MintPayload struct {
	AssetId AssetId
	Value   AssetValue
}

type BurnPayload struct {
	AssetId AssetId
	Value   AssetValue
}

type TransferPayload struct {
	AssetId     AssetId
	Destination AccountId
	Value       AssetValue
}

// GrantPayload either grants a role or a single permission token to an
// account.
type GrantPayload struct {
	Account    AccountId
	RoleId     *RoleId
	Permission *PermissionToken
}

type RevokePayload struct {
	Account    AccountId
	RoleId     *RoleId
	Permission *PermissionDefinitionId
}

type SetKeyValuePayload struct {
	// Subject identifies the entity (domain/account/asset-definition) whose
	// metadata is being set, as its stringified id.
	Subject string
	Key     string
	Value   any
}

// UpgradePayload installs a new executor bundle, taking effect at the next
// block boundary (spec §9 Open Question (c)).
type UpgradePayload struct {
	Wasm    []byte
	Version uint32
}

type ExecuteTriggerPayload struct {
	TriggerId TriggerId
}

type IfPayload struct {
	Condition bool
	Then      Instruction
	Else      *Instruction
}

type PairPayload struct {
	First  Instruction
	Second Instruction
}
