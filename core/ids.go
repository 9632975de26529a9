package core

import (
	"fmt"
	"strings"

	"github.com/tolelom/irohad/crypto"
)

// maxIdentLength bounds every identifier component so that parsing a
// hostile or corrupt input cannot allocate unbounded memory (spec §4.B:
// "Identifier parsing is fallible and length-bounded").
const maxIdentLength = 128

// DomainId is a domain name, unique across the WSV.
type DomainId struct {
	Name string
}

func NewDomainId(name string) (DomainId, error) {
	if err := validateIdentComponent(name); err != nil {
		return DomainId{}, fmt.Errorf("domain id: %w", err)
	}
	return DomainId{Name: name}, nil
}

func (d DomainId) String() string { return d.Name }

// AccountId is (DomainId, PublicKey); its text form is "<key>@<domain>".
type AccountId struct {
	Domain DomainId
	Key    crypto.AccountKey
}

func NewAccountId(domain DomainId, key crypto.AccountKey) AccountId {
	return AccountId{Domain: domain, Key: key}
}

func (a AccountId) String() string {
	return fmt.Sprintf("%s@%s", a.Key.String(), a.Domain.Name)
}

func (a AccountId) Equal(other AccountId) bool {
	return a.Domain == other.Domain && a.Key.Equal(other.Key)
}

// AssetDefinitionId is (name, DomainId); text form "<name>#<domain>".
type AssetDefinitionId struct {
	Name   string
	Domain DomainId
}

func NewAssetDefinitionId(name string, domain DomainId) (AssetDefinitionId, error) {
	if err := validateIdentComponent(name); err != nil {
		return AssetDefinitionId{}, fmt.Errorf("asset definition id: %w", err)
	}
	return AssetDefinitionId{Name: name, Domain: domain}, nil
}

func (a AssetDefinitionId) String() string {
	return fmt.Sprintf("%s#%s", a.Name, a.Domain.Name)
}

// AssetId is (AssetDefinitionId, AccountId); text form
// "<def-name>#<def-domain>#<account>".
type AssetId struct {
	Definition AssetDefinitionId
	Account    AccountId
}

func NewAssetId(def AssetDefinitionId, account AccountId) AssetId {
	return AssetId{Definition: def, Account: account}
}

func (a AssetId) String() string {
	return fmt.Sprintf("%s#%s", a.Definition.String(), a.Account.String())
}

// RoleId names a role, unique across the WSV.
type RoleId struct {
	Name string
}

func NewRoleId(name string) (RoleId, error) {
	if err := validateIdentComponent(name); err != nil {
		return RoleId{}, fmt.Errorf("role id: %w", err)
	}
	return RoleId{Name: name}, nil
}

func (r RoleId) String() string { return r.Name }

// TriggerId names a trigger, unique across the WSV.
type TriggerId struct {
	Name string
}

func NewTriggerId(name string) (TriggerId, error) {
	if err := validateIdentComponent(name); err != nil {
		return TriggerId{}, fmt.Errorf("trigger id: %w", err)
	}
	return TriggerId{Name: name}, nil
}

func (t TriggerId) String() string { return t.Name }

// PermissionDefinitionId names the kind of permission a PermissionToken
// grants (e.g. "can_transfer_asset").
type PermissionDefinitionId struct {
	Name string
}

func NewPermissionDefinitionId(name string) (PermissionDefinitionId, error) {
	if err := validateIdentComponent(name); err != nil {
		return PermissionDefinitionId{}, fmt.Errorf("permission definition id: %w", err)
	}
	return PermissionDefinitionId{Name: name}, nil
}

func (p PermissionDefinitionId) String() string { return p.Name }

func validateIdentComponent(s string) error {
	if s == "" {
		return fmt.Errorf("identifier component must not be empty")
	}
	if len(s) > maxIdentLength {
		return fmt.Errorf("identifier component exceeds %d bytes", maxIdentLength)
	}
	if strings.ContainsAny(s, "@#\x00\n") {
		return fmt.Errorf("identifier component %q contains a reserved character", s)
	}
	return nil
}
