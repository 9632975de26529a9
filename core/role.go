package core

// PassCondition names a check run when a PermissionToken is granted or
// revoked (spec §4.G: "authority is the asset's owner", "authority is the
// domain owner", "only at genesis").
type PassCondition byte

const (
	PassAlways PassCondition = iota
	PassAssetOwner
	PassDomainOwner
	PassGenesisOnly
)

// PermissionToken is a definition id plus an opaque JSON-encoded payload
// (spec §3). The payload typically names the specific entity the
// permission applies to (e.g. an AssetDefinitionId).
type PermissionToken struct {
	Definition    PermissionDefinitionId
	Payload       []byte
	PassCondition PassCondition
}

// Role is a named bundle of permission tokens, granted to accounts as a
// unit (spec §3).
type Role struct {
	Id          RoleId
	Permissions []PermissionToken
}

func NewRole(id RoleId) *Role {
	return &Role{Id: id}
}

func (r *Role) AddPermission(tok PermissionToken) {
	r.Permissions = append(r.Permissions, tok)
}
