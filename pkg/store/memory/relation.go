package memory

import (
	"context"
	"slices"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store"
)

func (t *memTx) InsertRelation(ctx context.Context, r *common.Relation) (int64, error) {
	if err := t.checkWrite(); err != nil {
		return 0, err
	}
	if err := t.checkRef(r.Source); err != nil {
		return 0, err
	}
	if err := t.checkRef(r.Target); err != nil {
		return 0, err
	}
	if _, ok := t.st.types[r.PredicateID]; !ok {
		return 0, common.NotFound("type", r.PredicateID)
	}
	row := *r
	row.ID = t.st.next("relations")
	row.CreatedAt = t.now()
	t.st.relations[row.ID] = row
	r.ID = row.ID
	r.CreatedAt = row.CreatedAt
	return row.ID, nil
}

// checkRef mirrors the foreign keys of the relational schema.
func (t *memTx) checkRef(ref common.Ref) error {
	e, ok := t.st.entities[ref.ID]
	if !ok {
		return common.NotFound("entity", ref.ID)
	}
	if e.Base().Kind != ref.Kind {
		return common.NewValidationError(common.ErrKindMismatch, "reference kind "+string(ref.Kind), ref.ID)
	}
	return nil
}

func (t *memTx) GetRelation(ctx context.Context, id int64, includeDeleted bool) (*common.Relation, error) {
	r, ok := t.st.relations[id]
	if !ok || (r.Deleted && !includeDeleted) {
		return nil, common.NotFound("relation", id)
	}
	return &r, nil
}

func (t *memTx) ListRelations(ctx context.Context, q store.RelationQuery) ([]common.Relation, error) {
	var out []common.Relation
	for _, id := range sortedKeys(t.st.relations) {
		if id <= q.AfterID {
			continue
		}
		r := t.st.relations[id]
		if !q.Matches(r) {
			continue
		}
		out = append(out, r)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (t *memTx) SetRelationTarget(ctx context.Context, id int64, target common.Ref) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	r, ok := t.st.relations[id]
	if !ok {
		return common.NotFound("relation", id)
	}
	if err := t.checkRef(target); err != nil {
		return err
	}
	r.Target = target
	t.st.relations[id] = r
	return nil
}

func (t *memTx) SoftDeleteRelation(ctx context.Context, id int64) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	r, ok := t.st.relations[id]
	if !ok || r.Deleted {
		return common.NotFound("relation", id)
	}
	r.Deleted = true
	t.st.relations[id] = r
	return nil
}

func (t *memTx) DeleteRelations(ctx context.Context, ids []int64) (int64, error) {
	if err := t.checkWrite(); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		if _, ok := t.st.relations[id]; !ok {
			continue
		}
		delete(t.st.relations, id)
		n++
	}
	return n, nil
}

func (t *memTx) RepointRelations(ctx context.Context, kind common.Kind, from []int64, to int64) (int64, error) {
	if err := t.checkWrite(); err != nil {
		return 0, err
	}
	var n int64
	for id, r := range t.st.relations {
		changed := false
		if r.Source.Kind == kind && slices.Contains(from, r.Source.ID) {
			r.Source.ID = to
			changed = true
		}
		if r.Target.Kind == kind && slices.Contains(from, r.Target.ID) {
			r.Target.ID = to
			changed = true
		}
		if changed {
			t.st.relations[id] = r
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertContentRelation(ctx context.Context, cr *common.ContentRelation) (int64, error) {
	if err := t.checkWrite(); err != nil {
		return 0, err
	}
	for _, id := range []int64{cr.ForResource, cr.ContentResource} {
		if err := t.checkRef(common.Ref{Kind: common.KindResource, ID: id}); err != nil {
			return 0, err
		}
	}
	row := *cr
	row.ID = t.st.next("content_relations")
	row.CreatedAt = t.now()
	t.st.contents[row.ID] = row
	cr.ID = row.ID
	cr.CreatedAt = row.CreatedAt
	return row.ID, nil
}

func (t *memTx) ListContentRelations(ctx context.Context, forResource int64, contentType string) ([]common.ContentRelation, error) {
	var out []common.ContentRelation
	for _, id := range sortedKeys(t.st.contents) {
		cr := t.st.contents[id]
		if cr.ForResource != forResource {
			continue
		}
		if contentType != "" && cr.ContentType != contentType {
			continue
		}
		out = append(out, cr)
	}
	return out, nil
}

func (t *memTx) RepointContentRelations(ctx context.Context, from []int64, to int64) (int64, error) {
	if err := t.checkWrite(); err != nil {
		return 0, err
	}
	var n int64
	for id, cr := range t.st.contents {
		changed := false
		if slices.Contains(from, cr.ForResource) {
			cr.ForResource = to
			changed = true
		}
		if slices.Contains(from, cr.ContentResource) {
			cr.ContentResource = to
			changed = true
		}
		if changed {
			t.st.contents[id] = cr
			n++
		}
	}
	return n, nil
}
