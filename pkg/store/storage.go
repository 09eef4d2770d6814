package store

import (
	"context"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
)

// GraphStore is the backing store of the entity graph. Every mutation runs
// inside WithTx so that a failure leaves the store in its pre-call state.
// Read runs fn against a consistent read-only view.
type GraphStore interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Read(ctx context.Context, fn func(tx Tx) error) error
}

// RelationQuery filters relations. Results are ordered by ascending id and
// start after AfterID. A zero Limit means no limit.
type RelationQuery struct {
	Source         *common.Ref
	PredicateID    *int64
	Target         *common.Ref
	IncludeDeleted bool
	AfterID        int64
	Limit          int
}

// Bounded reports whether at least one filter is set.
func (q RelationQuery) Bounded() bool {
	return q.Source != nil || q.PredicateID != nil || q.Target != nil
}

// Tx exposes the primitives the graph engines are built from. Reads never
// return soft-deleted rows unless includeDeleted is set.
type Tx interface {
	// LockEntities takes an exclusive lock on every id for the rest of the
	// transaction, in ascending order. It fails with common.ErrLockConflict
	// when another transaction holds one of the locks.
	LockEntities(ctx context.Context, ids []int64) error

	InsertEntity(ctx context.Context, e common.Entity) (int64, error)
	GetEntity(ctx context.Context, id int64, includeDeleted bool) (common.Entity, error)
	GetEntities(ctx context.Context, ids []int64, includeDeleted bool) ([]common.Entity, error)
	UpdateEntity(ctx context.Context, e common.Entity) error
	SoftDeleteEntity(ctx context.Context, id int64) error
	DeleteEntities(ctx context.Context, ids []int64) (int64, error)
	CountEntities(ctx context.Context) (int64, error)

	InsertContainer(ctx context.Context, c *common.Container) (int64, error)
	MoveContainer(ctx context.Context, from, to int64) error
	GetContainer(ctx context.Context, id int64) (*common.Container, error)
	// RepointEntityReferences rewrites container primaries and collection
	// parents naming any of from to name to.
	RepointEntityReferences(ctx context.Context, from []int64, to int64) (int64, error)

	UpsertSchema(ctx context.Context, s *common.Schema) (int64, error)
	UpsertType(ctx context.Context, t *common.Type) (int64, error)
	GetType(ctx context.Context, id int64) (*common.Type, error)
	GetTypeByURI(ctx context.Context, uri string) (*common.Type, error)

	InsertRelation(ctx context.Context, r *common.Relation) (int64, error)
	GetRelation(ctx context.Context, id int64, includeDeleted bool) (*common.Relation, error)
	ListRelations(ctx context.Context, q RelationQuery) ([]common.Relation, error)
	SetRelationTarget(ctx context.Context, id int64, target common.Ref) error
	SoftDeleteRelation(ctx context.Context, id int64) error
	DeleteRelations(ctx context.Context, ids []int64) (int64, error)
	// RepointRelations rewrites every source and target reference to one of
	// from (of the given kind) so that it names to instead.
	RepointRelations(ctx context.Context, kind common.Kind, from []int64, to int64) (int64, error)

	InsertContentRelation(ctx context.Context, cr *common.ContentRelation) (int64, error)
	ListContentRelations(ctx context.Context, forResource int64, contentType string) ([]common.ContentRelation, error)
	RepointContentRelations(ctx context.Context, from []int64, to int64) (int64, error)

	InsertIdentity(ctx context.Context, i *common.Identity) (int64, error)
	// ListIdentities returns every identity that either contains id or has it
	// as representative, ordered by ascending id.
	ListIdentities(ctx context.Context, id int64) ([]common.Identity, error)
	ListIdentitiesByRepresentative(ctx context.Context, ids []int64) ([]common.Identity, error)
	ReassignRepresentative(ctx context.Context, from []int64, to int64) (int64, error)
}
