package memory

import (
	"context"
	"slices"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
)

func (t *memTx) UpsertSchema(ctx context.Context, s *common.Schema) (int64, error) {
	if err := t.checkWrite(); err != nil {
		return 0, err
	}
	for id, cur := range t.st.schemas {
		if cur.URI == s.URI {
			cur.Name = s.Name
			t.st.schemas[id] = cur
			s.ID = id
			s.CreatedAt = cur.CreatedAt
			return id, nil
		}
	}
	row := *s
	row.ID = t.st.next("schemas")
	row.CreatedAt = t.now()
	t.st.schemas[row.ID] = row
	s.ID = row.ID
	s.CreatedAt = row.CreatedAt
	return row.ID, nil
}

func (t *memTx) UpsertType(ctx context.Context, typ *common.Type) (int64, error) {
	if err := t.checkWrite(); err != nil {
		return 0, err
	}
	row := *typ
	row.Domain = slices.Clone(typ.Domain)
	row.Range = slices.Clone(typ.Range)
	for id, cur := range t.st.types {
		if cur.URI == typ.URI {
			row.ID = id
			row.CreatedAt = cur.CreatedAt
			t.st.types[id] = row
			typ.ID = id
			typ.CreatedAt = cur.CreatedAt
			return id, nil
		}
	}
	row.ID = t.st.next("types")
	row.CreatedAt = t.now()
	t.st.types[row.ID] = row
	typ.ID = row.ID
	typ.CreatedAt = row.CreatedAt
	return row.ID, nil
}

func (t *memTx) GetType(ctx context.Context, id int64) (*common.Type, error) {
	cur, ok := t.st.types[id]
	if !ok {
		return nil, common.NotFound("type", id)
	}
	cur.Domain = slices.Clone(cur.Domain)
	cur.Range = slices.Clone(cur.Range)
	return &cur, nil
}

func (t *memTx) GetTypeByURI(ctx context.Context, uri string) (*common.Type, error) {
	for _, id := range sortedKeys(t.st.types) {
		if t.st.types[id].URI == uri {
			return t.GetType(ctx, id)
		}
	}
	return nil, common.ErrNotFound
}
