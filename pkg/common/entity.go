package common

import (
	"slices"
	"time"

	"github.com/OFFIS-RIT/amphora/backend/pkg/value"
)

// Entity is implemented by the four concrete entity kinds only. The unexported
// marker keeps the set closed so a switch over Kind is exhaustive.
type Entity interface {
	Base() *EntityBase
	isEntity()
}

// EntityBase holds the fields shared by every kind.
type EntityBase struct {
	ID          int64     `json:"id"`
	Kind        Kind      `json:"kind"`
	Name        string    `json:"name"`
	URI         string    `json:"uri"`
	Namespace   string    `json:"namespace"`
	TypeID      *int64    `json:"type_id,omitempty"`
	ContainerID *int64    `json:"container_id,omitempty"`
	Deleted     bool      `json:"deleted"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Resource is a document, image or external reference. Content resources
// carry the payload itself, either as a stored file or a remote location.
type Resource struct {
	EntityBase
	ContentResource bool   `json:"content_resource"`
	External        bool   `json:"external"`
	ExternalSource  string `json:"external_source"`
	Location        string `json:"location"`
	FileKey         string `json:"file_key"`
	ContentType     string `json:"content_type"`
}

// Collection groups resources. Nested collections point at their parent via PartOfID.
type Collection struct {
	EntityBase
	Description string `json:"description"`
	PartOfID    *int64 `json:"part_of_id,omitempty"`
}

// ConceptEntity is a named thing (person, place, subject). ConceptURI is the
// link to an external authority record, empty when there is none.
type ConceptEntity struct {
	EntityBase
	ConceptURI string `json:"concept_uri"`
}

// Value is a typed literal. Payload always holds the canonical serialization.
type Value struct {
	EntityBase
	ValueType value.Type `json:"value_type"`
	Payload   string     `json:"payload"`
}

func (e *EntityBase) Base() *EntityBase { return e }

func (*Resource) isEntity()      {}
func (*Collection) isEntity()    {}
func (*ConceptEntity) isEntity() {}
func (*Value) isEntity()         {}

// ContentKey identifies the content of a value independent of its row id.
func (v *Value) ContentKey() string {
	return value.ContentKey(v.ValueType, v.Payload)
}

// New returns an empty entity of kind k with its discriminant set.
func New(k Kind) (Entity, error) {
	var e Entity
	switch k {
	case KindResource:
		e = &Resource{}
	case KindCollection:
		e = &Collection{}
	case KindConcept:
		e = &ConceptEntity{}
	case KindValue:
		e = &Value{}
	default:
		return nil, ErrKindMismatch
	}
	e.Base().Kind = k
	return e, nil
}

// KindOf derives the discriminant from the concrete Go type, ignoring whatever
// is stored in the base. Callers use it to reject mismatched input.
func KindOf(e Entity) Kind {
	switch e.(type) {
	case *Resource:
		return KindResource
	case *Collection:
		return KindCollection
	case *ConceptEntity:
		return KindConcept
	case *Value:
		return KindValue
	}
	return ""
}

// Clone returns a deep copy of e.
func Clone(e Entity) Entity {
	var out Entity
	switch t := e.(type) {
	case *Resource:
		c := *t
		out = &c
	case *Collection:
		c := *t
		c.PartOfID = cloneID(t.PartOfID)
		out = &c
	case *ConceptEntity:
		c := *t
		out = &c
	case *Value:
		c := *t
		out = &c
	default:
		return nil
	}
	b := out.Base()
	b.TypeID = cloneID(b.TypeID)
	b.ContainerID = cloneID(b.ContainerID)
	return out
}

// As converts e to the concrete type T.
func As[T Entity](e Entity) (T, error) {
	t, ok := e.(T)
	if !ok {
		var zero T
		return zero, NewValidationError(ErrKindMismatch, "unexpected entity kind "+string(e.Base().Kind), e.Base().ID)
	}
	return t, nil
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// SortedIDs returns the ids in ascending order without duplicates.
func SortedIDs(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// IDPtr returns a pointer to id.
func IDPtr(id int64) *int64 {
	return &id
}
