package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/logger"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store"
	"github.com/OFFIS-RIT/amphora/backend/pkg/value"
)

// CreateEntity stores e and returns its id. The concrete type of e decides the
// kind; a conflicting Kind on the base is rejected. An empty URI is replaced
// by one derived from the namespace, kind and id.
func (g *GraphClient) CreateEntity(ctx context.Context, e common.Entity) (int64, error) {
	if e == nil {
		return 0, errors.New("entity is nil")
	}
	kind := common.KindOf(e)
	b := e.Base()
	if b.Kind == "" {
		b.Kind = kind
	}
	if b.Kind != kind {
		return 0, common.NewValidationError(common.ErrKindMismatch, fmt.Sprintf("%s given for a %s", b.Kind, kind))
	}
	b.ID = 0
	b.Deleted = false
	if b.Namespace == "" {
		b.Namespace = g.namespace
	}

	err := g.update(ctx, func(ctx context.Context, tx store.Tx) error {
		return g.insertEntity(ctx, tx, e)
	})
	if err != nil {
		return 0, err
	}
	logger.Debug("[Entity] Created", "id", b.ID, "kind", kind)
	return b.ID, nil
}

// insertEntity validates e against the registry, inserts it and assigns a
// URI if it has none.
func (g *GraphClient) insertEntity(ctx context.Context, tx store.Tx, e common.Entity) error {
	if err := prepareEntity(ctx, tx, e); err != nil {
		return err
	}
	b := e.Base()
	if _, err := tx.InsertEntity(ctx, e); err != nil {
		return err
	}
	if b.URI != "" {
		return nil
	}
	b.URI = g.entityURI(b.Namespace, b.Kind, b.ID)
	return tx.UpdateEntity(ctx, e)
}

func prepareEntity(ctx context.Context, tx store.Tx, e common.Entity) error {
	b := e.Base()
	if v, ok := e.(*common.Value); ok {
		payload, err := value.Canonicalize(v.ValueType, v.Payload)
		if err != nil {
			return err
		}
		v.Payload = payload
		id, err := systemType(ctx, tx, v.ValueType)
		if err != nil {
			return err
		}
		b.TypeID = &id
		return nil
	}
	if b.TypeID != nil {
		if _, err := tx.GetType(ctx, *b.TypeID); err != nil {
			return err
		}
	}
	return nil
}

// CreateValue stores v as a value entity. v must be one of the supported Go
// types (integers, floats, string, bool, time.Time).
func (g *GraphClient) CreateValue(ctx context.Context, v any, createdBy string) (*common.Value, error) {
	vt, payload, err := value.Encode(v)
	if err != nil {
		return nil, err
	}
	out := &common.Value{
		EntityBase: common.EntityBase{Kind: common.KindValue, CreatedBy: createdBy},
		ValueType:  vt,
		Payload:    payload,
	}
	if _, err := g.CreateEntity(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get loads a live entity and returns it as its concrete type.
func (g *GraphClient) Get(ctx context.Context, id int64) (common.Entity, error) {
	var e common.Entity
	err := g.read(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		e, err = tx.GetEntity(ctx, id, false)
		return err
	})
	return e, err
}

// Cast resolves a polymorphic reference to the concrete entity it names. The
// stored kind must agree with ref.Kind. Cast never writes.
func (g *GraphClient) Cast(ctx context.Context, ref common.Ref) (common.Entity, error) {
	var e common.Entity
	err := g.read(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		e, err = resolveRef(ctx, tx, ref, false)
		return err
	})
	return e, err
}

// GetAs loads the entity with the given id as T and fails with
// common.ErrKindMismatch when the stored kind does not match.
func GetAs[T common.Entity](ctx context.Context, g *GraphClient, id int64) (T, error) {
	e, err := g.Get(ctx, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return common.As[T](e)
}

func resolveRef(ctx context.Context, tx store.Tx, ref common.Ref, includeDeleted bool) (common.Entity, error) {
	e, err := tx.GetEntity(ctx, ref.ID, includeDeleted)
	if err != nil {
		return nil, err
	}
	if k := e.Base().Kind; k != ref.Kind {
		return nil, common.NewValidationError(common.ErrKindMismatch, fmt.Sprintf("reference says %s, stored as %s", ref.Kind, k), ref.ID)
	}
	return e, nil
}

// UpdateEntity overwrites the mutable fields of a live entity. The kind of an
// entity never changes.
func (g *GraphClient) UpdateEntity(ctx context.Context, e common.Entity) error {
	b := e.Base()
	return g.update(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockEntities(ctx, []int64{b.ID}); err != nil {
			return err
		}
		cur, err := tx.GetEntity(ctx, b.ID, false)
		if err != nil {
			return err
		}
		if cur.Base().Kind != common.KindOf(e) {
			return common.NewValidationError(common.ErrKindMismatch, "kind is fixed at creation", b.ID)
		}
		b.Kind = cur.Base().Kind
		if b.URI == "" {
			b.URI = cur.Base().URI
		}
		if b.Namespace == "" {
			b.Namespace = cur.Base().Namespace
		}
		if err := prepareEntity(ctx, tx, e); err != nil {
			return err
		}
		return tx.UpdateEntity(ctx, e)
	})
}

// SoftDelete hides an entity from normal reads.
func (g *GraphClient) SoftDelete(ctx context.Context, id int64) error {
	err := g.update(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockEntities(ctx, []int64{id}); err != nil {
			return err
		}
		return tx.SoftDeleteEntity(ctx, id)
	})
	if err != nil {
		return err
	}
	logger.Debug("[Entity] Soft deleted", "id", id)
	return nil
}

// CreateContainer stores a new container and returns its id.
func (g *GraphClient) CreateContainer(ctx context.Context, c *common.Container) (int64, error) {
	err := g.update(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.InsertContainer(ctx, c)
		return err
	})
	if err != nil {
		return 0, err
	}
	return c.ID, nil
}

// CountEntities returns the number of stored entity rows, soft-deleted ones included.
func (g *GraphClient) CountEntities(ctx context.Context) (int64, error) {
	var n int64
	err := g.read(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		n, err = tx.CountEntities(ctx)
		return err
	})
	return n, err
}
