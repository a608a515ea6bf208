// Package ident canonicalizes record ids into storage keys.
package ident

import (
	"strings"

	"github.com/google/uuid"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
)

// Normalize returns the storage key of id for the given kind. When reduced
// is set the reduced suffix is appended unless id already carries it.
// Normalize(Normalize(x)) == Normalize(x) for every kind.
func Normalize(kind models.Kind, id string, reduced bool) (string, error) {
	d, err := kind.Descriptor()
	if err != nil {
		return "", err
	}
	key := strings.TrimSpace(id)
	if reduced && !IsReduced(key) {
		key += models.ReducedSuffix
	}
	switch d.Case {
	case models.IDUpper:
		return strings.ToUpper(key), nil
	default:
		return strings.ToLower(key), nil
	}
}

// IsReduced reports whether id denotes a reduced variant
func IsReduced(id string) bool {
	return strings.HasSuffix(strings.ToUpper(id), models.ReducedSuffix)
}

// Generator produces new record ids
type Generator func(kind models.Kind) string

// NewUUID generates a random id cased for kind
func NewUUID(kind models.Kind) string {
	id := uuid.New().String()
	if d, err := kind.Descriptor(); err == nil && d.Case == models.IDUpper {
		return strings.ToUpper(id)
	}
	return id
}
