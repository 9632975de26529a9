package core

import (
	"fmt"
	"math/big"
)

// AssetValueType names the shape a value stored against an AssetDefinition
// must take (spec §3: "value type (numeric with precision / store / big)").
type AssetValueType byte

const (
	ValueNumeric AssetValueType = iota
	ValueStore
	ValueBig
)

// Mintability controls how many times Mint may be applied to instances of
// an AssetDefinition.
type Mintability byte

const (
	MintOnce Mintability = iota
	MintIndefinite
	MintNot
)

// AssetDefinition names a kind of asset within a domain: its value type,
// mintability, and running total issued (spec §3).
type AssetDefinition struct {
	Id           AssetDefinitionId
	ValueType    AssetValueType
	Precision    uint32
	Mintability  Mintability
	TotalIssued  *big.Int
	Metadata     map[string]any
}

func NewAssetDefinition(id AssetDefinitionId, valueType AssetValueType, mintability Mintability) *AssetDefinition {
	return &AssetDefinition{
		Id:          id,
		ValueType:   valueType,
		Mintability: mintability,
		TotalIssued: big.NewInt(0),
		Metadata:    make(map[string]any),
	}
}

// AssetValue is a tagged union matching AssetValueType; exactly one field is
// meaningful depending on Type.
type AssetValue struct {
	Type  AssetValueType
	Numeric uint64
	Store map[string]any
	Big   *big.Int
}

func NumericValue(v uint64) AssetValue { return AssetValue{Type: ValueNumeric, Numeric: v} }
func StoreValue(v map[string]any) AssetValue {
	return AssetValue{Type: ValueStore, Store: v}
}
func BigValue(v *big.Int) AssetValue { return AssetValue{Type: ValueBig, Big: v} }

// MatchesDefinition reports whether the value's type matches the
// definition's declared type (spec §3 invariant: "its stored value type
// equals its definition's type").
func (v AssetValue) MatchesDefinition(def *AssetDefinition) bool {
	return v.Type == def.ValueType
}

// Asset is (AssetId, value); value must match its definition's type.
type Asset struct {
	Id    AssetId
	Value AssetValue
}

func NewAsset(id AssetId, value AssetValue) *Asset {
	return &Asset{Id: id, Value: value}
}

// Add returns a+b for two numeric values of the same type, erroring on
// mismatched types or overflow.
func (v AssetValue) Add(other AssetValue) (AssetValue, error) {
	if v.Type != other.Type {
		return AssetValue{}, fmt.Errorf("asset value type mismatch: %v vs %v", v.Type, other.Type)
	}
	switch v.Type {
	case ValueNumeric:
		sum := v.Numeric + other.Numeric
		if sum < v.Numeric {
			return AssetValue{}, fmt.Errorf("numeric asset value overflow")
		}
		return NumericValue(sum), nil
	case ValueBig:
		return BigValue(new(big.Int).Add(v.Big, other.Big)), nil
	default:
		return AssetValue{}, fmt.Errorf("asset value type %v does not support arithmetic", v.Type)
	}
}

// Sub returns v-other, erroring on underflow or mismatched types.
func (v AssetValue) Sub(other AssetValue) (AssetValue, error) {
	if v.Type != other.Type {
		return AssetValue{}, fmt.Errorf("asset value type mismatch: %v vs %v", v.Type, other.Type)
	}
	switch v.Type {
	case ValueNumeric:
		if other.Numeric > v.Numeric {
			return AssetValue{}, fmt.Errorf("numeric asset value underflow")
		}
		return NumericValue(v.Numeric - other.Numeric), nil
	case ValueBig:
		diff := new(big.Int).Sub(v.Big, other.Big)
		if diff.Sign() < 0 {
			return AssetValue{}, fmt.Errorf("big asset value underflow")
		}
		return BigValue(diff), nil
	default:
		return AssetValue{}, fmt.Errorf("asset value type %v does not support arithmetic", v.Type)
	}
}
