package models

import (
	"strings"

	dErrors "citygate/pkg/domain-errors"
)

// MaxKeyBytes caps the canonical key at the smallest document id limit among
// the backends (Elasticsearch rejects ids over 512 bytes).
const MaxKeyBytes = 512

// City is the single stored record.
//
// Invariants:
//   - Name is non-empty after trimming
//   - Population is non-negative
//   - Key() is derived from Name and never stored separately
type City struct {
	Name       string `json:"city"`
	Population int64  `json:"population"`
}

// NewCity validates and constructs a City.
func NewCity(name string, population int64) (*City, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "city is required")
	}
	if len(Key(name)) > MaxKeyBytes {
		return nil, dErrors.New(dErrors.CodeValidation, "city must be 512 bytes or less")
	}
	if population < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "population must be a non-negative integer")
	}
	return &City{Name: name, Population: population}, nil
}

// Key returns the canonical storage identifier for the city.
func (c *City) Key() string {
	return Key(c.Name)
}

// Key canonicalizes a raw name: surrounding whitespace is dropped and the rest
// lower-cased, so "Baku", "BAKU" and " baku " address the same record.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
