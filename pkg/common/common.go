package common

import (
	"fmt"
	"time"
)

// Kind is the discriminant of an entity. It is fixed when the entity is
// created and is the only thing used to decide which concrete type a stored
// row decodes into.
type Kind string

const (
	KindResource   Kind = "resource"
	KindCollection Kind = "collection"
	KindConcept    Kind = "concept"
	KindValue      Kind = "value"
)

// Kinds lists every supported kind in a stable order.
var Kinds = []Kind{KindResource, KindCollection, KindConcept, KindValue}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindResource, KindCollection, KindConcept, KindValue:
		return true
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}

// ParseKind converts a stored or user supplied discriminant into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
	return k, nil
}

// Ref is a polymorphic reference to any entity, including values.
type Ref struct {
	Kind Kind  `json:"kind"`
	ID   int64 `json:"id"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// RefOf builds a reference pointing at e.
func RefOf(e Entity) Ref {
	b := e.Base()
	return Ref{Kind: b.Kind, ID: b.ID}
}

// Container groups the rows that were created together, usually by one
// ingestion run or upload. Merging resources moves rows between containers.
type Container struct {
	ID        int64     `json:"id"`
	PrimaryID *int64    `json:"primary_id,omitempty"`
	PartOfID  *int64    `json:"part_of_id,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Relation is a subject–predicate–object triple. The predicate is always a
// Field; source and target may point at any entity kind.
type Relation struct {
	ID          int64     `json:"id"`
	Source      Ref       `json:"source"`
	PredicateID int64     `json:"predicate_id"`
	Target      Ref       `json:"target"`
	DataSource  string    `json:"data_source"`
	ContainerID *int64    `json:"container_id,omitempty"`
	Deleted     bool      `json:"deleted"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// ContentRelation links a resource to the resource that carries its payload.
// Several content relations may share one content resource.
type ContentRelation struct {
	ID              int64     `json:"id"`
	ForResource     int64     `json:"for_resource"`
	ContentResource int64     `json:"content_resource"`
	ContentType     string    `json:"content_type"`
	ContentEncoding string    `json:"content_encoding"`
	ContainerID     *int64    `json:"container_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Identity records that a set of concept entities refer to the same thing.
// Identities are additive history: the grouped entities are never removed.
type Identity struct {
	ID             int64     `json:"id"`
	Representative int64     `json:"representative"`
	Entities       []int64   `json:"entities"`
	AddedBy        string    `json:"added_by"`
	AddedAt        time.Time `json:"added_at"`
}

// Contains reports whether id is one of the grouped entities.
func (i Identity) Contains(id int64) bool {
	for _, e := range i.Entities {
		if e == id {
			return true
		}
	}
	return false
}
