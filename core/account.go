package core

import "github.com/tolelom/irohad/crypto"

// Account is uniquely identified by its AccountId and holds the signatory
// set, quorum threshold, granted permissions, and role membership spec §3
// requires.
type Account struct {
	Id          AccountId
	Signatories []crypto.AccountKey
	Quorum      uint32
	Metadata    map[string]any
	Permissions []PermissionToken
	Roles       []RoleId
}

func NewAccount(id AccountId) *Account {
	return &Account{
		Id:          id,
		Signatories: []crypto.AccountKey{id.Key},
		Quorum:      1,
		Metadata:    make(map[string]any),
	}
}

// HasSignatory reports whether key is one of the account's signatories.
func (a *Account) HasSignatory(key crypto.AccountKey) bool {
	for _, s := range a.Signatories {
		if s.Equal(key) {
			return true
		}
	}
	return false
}

// AddSignatory adds key to the signatory set if not already present.
func (a *Account) AddSignatory(key crypto.AccountKey) {
	if a.HasSignatory(key) {
		return
	}
	a.Signatories = append(a.Signatories, key)
}

// RemoveSignatory removes key from the signatory set.
func (a *Account) RemoveSignatory(key crypto.AccountKey) {
	out := a.Signatories[:0]
	for _, s := range a.Signatories {
		if !s.Equal(key) {
			out = append(out, s)
		}
	}
	a.Signatories = out
}

// HasRole reports whether the account holds the given role.
func (a *Account) HasRole(id RoleId) bool {
	for _, r := range a.Roles {
		if r == id {
			return true
		}
	}
	return false
}

// GrantRole adds a role id, a no-op if already granted.
func (a *Account) GrantRole(id RoleId) {
	if a.HasRole(id) {
		return
	}
	a.Roles = append(a.Roles, id)
}

// RevokeRole removes a role id.
func (a *Account) RevokeRole(id RoleId) {
	out := a.Roles[:0]
	for _, r := range a.Roles {
		if r != id {
			out = append(out, r)
		}
	}
	a.Roles = out
}

// GrantPermission adds a permission token, replacing any existing token with
// the same definition id.
func (a *Account) GrantPermission(tok PermissionToken) {
	for i, existing := range a.Permissions {
		if existing.Definition == tok.Definition {
			a.Permissions[i] = tok
			return
		}
	}
	a.Permissions = append(a.Permissions, tok)
}

// RevokePermission removes the permission token with the given definition id.
func (a *Account) RevokePermission(def PermissionDefinitionId) {
	out := a.Permissions[:0]
	for _, tok := range a.Permissions {
		if tok.Definition != def {
			out = append(out, tok)
		}
	}
	a.Permissions = out
}
