package common

import (
	"slices"
	"time"
)

// Schema is a named vocabulary that owns a set of types and fields.
type Schema struct {
	ID        int64     `json:"id"`
	URI       string    `json:"uri"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Type classifies entities. A Type with IsField set is a Field and may be used
// as a relation predicate; Domain and Range constrain the source and target
// types of such relations. An empty set means unconstrained.
type Type struct {
	ID          int64     `json:"id"`
	URI         string    `json:"uri"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	SchemaID    *int64    `json:"schema_id,omitempty"`
	IsField     bool      `json:"is_field"`
	Domain      []int64   `json:"domain"`
	Range       []int64   `json:"range"`
	CreatedAt   time.Time `json:"created_at"`
}

// InDomain reports whether a source of type typeID satisfies the domain.
func (t *Type) InDomain(typeID *int64) bool {
	return allowed(t.Domain, typeID)
}

// InRange reports whether a target of type typeID satisfies the range.
func (t *Type) InRange(typeID *int64) bool {
	return allowed(t.Range, typeID)
}

func allowed(set []int64, typeID *int64) bool {
	if len(set) == 0 {
		return true
	}
	if typeID == nil {
		return false
	}
	return slices.Contains(set, *typeID)
}
