package core

// Domain groups accounts and asset definitions under one namespace, with an
// owning account responsible for domain-level administration (spec §3).
type Domain struct {
	Id             DomainId
	Owner          AccountId
	Metadata       map[string]any
	AssetDefIds    []AssetDefinitionId
	AccountIds     []AccountId
	LogoURL        string
}

func NewDomain(id DomainId, owner AccountId) *Domain {
	return &Domain{
		Id:       id,
		Owner:    owner,
		Metadata: make(map[string]any),
	}
}

func (d *Domain) AddAccount(id AccountId) {
	for _, existing := range d.AccountIds {
		if existing.Equal(id) {
			return
		}
	}
	d.AccountIds = append(d.AccountIds, id)
}

func (d *Domain) RemoveAccount(id AccountId) {
	out := d.AccountIds[:0]
	for _, existing := range d.AccountIds {
		if !existing.Equal(id) {
			out = append(out, existing)
		}
	}
	d.AccountIds = out
}

func (d *Domain) AddAssetDefinition(id AssetDefinitionId) {
	d.AssetDefIds = append(d.AssetDefIds, id)
}
