// Package models defines the record kinds stored by geosync, their
// bookkeeping metadata and the configuration values passed to the engine.
package models

import (
	"fmt"
	"strings"
)

// Kind identifies a record variant
type Kind string

const (
	KindSpatialData Kind = "spatialdata"
	KindActivityPoi Kind = "odhactivitypoi"
	KindMarket      Kind = "market"
)

// Kinds lists every supported record kind
var Kinds = []Kind{KindSpatialData, KindActivityPoi, KindMarket}

// IDCase selects how a kind canonicalizes its ids
type IDCase int

const (
	IDLower IDCase = iota
	IDUpper
)

// Descriptor holds the static properties of a record kind
type Descriptor struct {
	Kind  Kind
	Table string
	Type  string // value of Metadata.Type
	Case  IDCase
}

// Descriptor returns the static properties of the kind
func (k Kind) Descriptor() (Descriptor, error) {
	switch k {
	case KindSpatialData:
		return Descriptor{Kind: k, Table: "spatialdatas", Type: "spatialdata", Case: IDLower}, nil
	case KindActivityPoi:
		return Descriptor{Kind: k, Table: "smgpois", Type: "odhactivitypoi", Case: IDLower}, nil
	case KindMarket:
		return Descriptor{Kind: k, Table: "markets", Type: "market", Case: IDUpper}, nil
	}
	return Descriptor{}, fmt.Errorf("unknown record kind %q", string(k))
}

// MustDescriptor is Descriptor for kinds known to be valid
func (k Kind) MustDescriptor() Descriptor {
	d, err := k.Descriptor()
	if err != nil {
		panic(err)
	}
	return d
}

// ParseKind resolves a kind name case-insensitively
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, err := k.Descriptor(); err != nil {
		return "", err
	}
	return k, nil
}
