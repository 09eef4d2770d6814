package memory

import (
	"context"
	"slices"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
)

func (t *memTx) InsertIdentity(ctx context.Context, i *common.Identity) (int64, error) {
	if err := t.checkWrite(); err != nil {
		return 0, err
	}
	if err := t.checkRef(common.Ref{Kind: common.KindConcept, ID: i.Representative}); err != nil {
		return 0, err
	}
	row := *i
	row.Entities = common.SortedIDs(i.Entities)
	for _, id := range row.Entities {
		if err := t.checkRef(common.Ref{Kind: common.KindConcept, ID: id}); err != nil {
			return 0, err
		}
	}
	row.ID = t.st.next("identities")
	row.AddedAt = t.now()
	t.st.identities[row.ID] = row
	i.ID = row.ID
	i.AddedAt = row.AddedAt
	i.Entities = slices.Clone(row.Entities)
	return row.ID, nil
}

func (t *memTx) ListIdentities(ctx context.Context, id int64) ([]common.Identity, error) {
	var out []common.Identity
	for _, iid := range sortedKeys(t.st.identities) {
		i := t.st.identities[iid]
		if i.Representative == id || i.Contains(id) {
			i.Entities = slices.Clone(i.Entities)
			out = append(out, i)
		}
	}
	return out, nil
}

func (t *memTx) ListIdentitiesByRepresentative(ctx context.Context, ids []int64) ([]common.Identity, error) {
	var out []common.Identity
	for _, iid := range sortedKeys(t.st.identities) {
		i := t.st.identities[iid]
		if slices.Contains(ids, i.Representative) {
			i.Entities = slices.Clone(i.Entities)
			out = append(out, i)
		}
	}
	return out, nil
}

func (t *memTx) ReassignRepresentative(ctx context.Context, from []int64, to int64) (int64, error) {
	if err := t.checkWrite(); err != nil {
		return 0, err
	}
	var n int64
	for id, i := range t.st.identities {
		if i.Representative != to && slices.Contains(from, i.Representative) {
			i.Representative = to
			t.st.identities[id] = i
			n++
		}
	}
	return n, nil
}
