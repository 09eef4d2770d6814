package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
)

func (t *memTx) InsertEntity(ctx context.Context, e common.Entity) (int64, error) {
	if err := t.checkWrite(); err != nil {
		return 0, err
	}
	if common.KindOf(e) != e.Base().Kind {
		return 0, common.ErrKindMismatch
	}
	c := common.Clone(e)
	b := c.Base()
	b.ID = t.st.next("entities")
	now := t.now()
	b.CreatedAt = now
	b.UpdatedAt = now
	t.st.entities[b.ID] = c
	e.Base().ID = b.ID
	e.Base().CreatedAt = now
	e.Base().UpdatedAt = now
	return b.ID, nil
}

func (t *memTx) GetEntity(ctx context.Context, id int64, includeDeleted bool) (common.Entity, error) {
	e, ok := t.st.entities[id]
	if !ok || (e.Base().Deleted && !includeDeleted) {
		return nil, common.NotFound("entity", id)
	}
	return common.Clone(e), nil
}

func (t *memTx) GetEntities(ctx context.Context, ids []int64, includeDeleted bool) ([]common.Entity, error) {
	out := make([]common.Entity, 0, len(ids))
	for _, id := range common.SortedIDs(ids) {
		e, ok := t.st.entities[id]
		if !ok || (e.Base().Deleted && !includeDeleted) {
			continue
		}
		out = append(out, common.Clone(e))
	}
	return out, nil
}

func (t *memTx) UpdateEntity(ctx context.Context, e common.Entity) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	id := e.Base().ID
	cur, ok := t.st.entities[id]
	if !ok {
		return common.NotFound("entity", id)
	}
	if cur.Base().Kind != common.KindOf(e) {
		return common.NewValidationError(common.ErrKindMismatch, "kind is fixed at creation", id)
	}
	c := common.Clone(e)
	c.Base().Kind = cur.Base().Kind
	c.Base().CreatedAt = cur.Base().CreatedAt
	c.Base().UpdatedAt = t.now()
	t.st.entities[id] = c
	return nil
}

func (t *memTx) SoftDeleteEntity(ctx context.Context, id int64) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	e, ok := t.st.entities[id]
	if !ok || e.Base().Deleted {
		return common.NotFound("entity", id)
	}
	e.Base().Deleted = true
	e.Base().UpdatedAt = t.now()
	return nil
}

func (t *memTx) DeleteEntities(ctx context.Context, ids []int64) (int64, error) {
	if err := t.checkWrite(); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		if _, ok := t.st.entities[id]; !ok {
			continue
		}
		if err := t.checkUnreferenced(id); err != nil {
			return n, err
		}
		delete(t.st.entities, id)
		n++
	}
	return n, nil
}

// checkUnreferenced mirrors the foreign keys that would block a hard delete.
func (t *memTx) checkUnreferenced(id int64) error {
	for _, r := range t.st.relations {
		if r.Source.ID == id || r.Target.ID == id {
			return fmt.Errorf("entity %d is still referenced by relation %d", id, r.ID)
		}
	}
	for _, cr := range t.st.contents {
		if cr.ForResource == id || cr.ContentResource == id {
			return fmt.Errorf("entity %d is still referenced by content relation %d", id, cr.ID)
		}
	}
	for _, i := range t.st.identities {
		if i.Representative == id || i.Contains(id) {
			return fmt.Errorf("entity %d is still referenced by identity %d", id, i.ID)
		}
	}
	return nil
}

func (t *memTx) CountEntities(ctx context.Context) (int64, error) {
	return int64(len(t.st.entities)), nil
}

func (t *memTx) InsertContainer(ctx context.Context, c *common.Container) (int64, error) {
	if err := t.checkWrite(); err != nil {
		return 0, err
	}
	row := *c
	row.ID = t.st.next("containers")
	row.CreatedAt = t.now()
	t.st.containers[row.ID] = row
	c.ID = row.ID
	c.CreatedAt = row.CreatedAt
	return row.ID, nil
}

func (t *memTx) MoveContainer(ctx context.Context, from, to int64) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	if from == to {
		return nil
	}
	for _, e := range t.st.entities {
		b := e.Base()
		if b.ContainerID != nil && *b.ContainerID == from {
			b.ContainerID = common.IDPtr(to)
		}
	}
	for id, r := range t.st.relations {
		if r.ContainerID != nil && *r.ContainerID == from {
			r.ContainerID = common.IDPtr(to)
			t.st.relations[id] = r
		}
	}
	for id, cr := range t.st.contents {
		if cr.ContainerID != nil && *cr.ContainerID == from {
			cr.ContainerID = common.IDPtr(to)
			t.st.contents[id] = cr
		}
	}
	return nil
}

func (t *memTx) GetContainer(ctx context.Context, id int64) (*common.Container, error) {
	c, ok := t.st.containers[id]
	if !ok {
		return nil, common.NotFound("container", id)
	}
	return &c, nil
}

func (t *memTx) RepointEntityReferences(ctx context.Context, from []int64, to int64) (int64, error) {
	if err := t.checkWrite(); err != nil {
		return 0, err
	}
	var n int64
	for id, c := range t.st.containers {
		if c.PrimaryID != nil && slices.Contains(from, *c.PrimaryID) {
			c.PrimaryID = common.IDPtr(to)
			t.st.containers[id] = c
			n++
		}
	}
	for _, e := range t.st.entities {
		col, ok := e.(*common.Collection)
		if ok && col.PartOfID != nil && slices.Contains(from, *col.PartOfID) {
			col.PartOfID = common.IDPtr(to)
			n++
		}
	}
	return n, nil
}
