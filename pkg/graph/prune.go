package graph

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/logger"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store"
)

// Prune deletes redundant relations of an entity: among relations with the
// same predicate and the same entity on the far side only the one with the
// lowest id survives. Values count as the same when their content is equal.
// It returns the number of deleted relations; a second call returns 0.
func (g *GraphClient) Prune(ctx context.Context, id int64) (int, error) {
	var n int
	err := g.update(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockEntities(ctx, []int64{id}); err != nil {
			return err
		}
		e, err := tx.GetEntity(ctx, id, true)
		if err != nil {
			return err
		}
		n, err = pruneEntity(ctx, tx, common.RefOf(e))
		return err
	})
	if err != nil {
		return 0, err
	}
	logger.Info("[Prune] Pruned relations", "id", id, "deleted", n)
	return n, nil
}

func pruneEntity(ctx context.Context, tx store.Tx, ref common.Ref) (int, error) {
	outgoing, err := tx.ListRelations(ctx, store.RelationQuery{Source: &ref})
	if err != nil {
		return 0, err
	}
	incoming, err := tx.ListRelations(ctx, store.RelationQuery{Target: &ref})
	if err != nil {
		return 0, err
	}

	values, err := valueKeys(ctx, tx, outgoing, incoming)
	if err != nil {
		return 0, err
	}
	dupes := duplicateRelations(outgoing, func(r common.Relation) common.Ref { return r.Target }, values)
	dupes = append(dupes, duplicateRelations(incoming, func(r common.Relation) common.Ref { return r.Source }, values)...)
	dupes = common.SortedIDs(dupes)
	if len(dupes) == 0 {
		return 0, nil
	}
	n, err := tx.DeleteRelations(ctx, dupes)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// valueKeys loads the content keys of every value referenced by the relations.
func valueKeys(ctx context.Context, tx store.Tx, sets ...[]common.Relation) (map[int64]string, error) {
	var ids []int64
	for _, rels := range sets {
		for _, r := range rels {
			for _, ref := range []common.Ref{r.Source, r.Target} {
				if ref.Kind == common.KindValue {
					ids = append(ids, ref.ID)
				}
			}
		}
	}
	keys := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return keys, nil
	}
	entities, err := tx.GetEntities(ctx, ids, true)
	if err != nil {
		return nil, err
	}
	for _, e := range entities {
		if v, ok := e.(*common.Value); ok {
			keys[v.ID] = v.ContentKey()
		}
	}
	return keys, nil
}

// duplicateRelations returns the ids of every relation that repeats an
// earlier one. rels must be sorted by ascending id; far selects the side of
// the relation that is compared.
func duplicateRelations(rels []common.Relation, far func(common.Relation) common.Ref, values map[int64]string) []int64 {
	seen := make(map[string]struct{}, len(rels))
	var dupes []int64
	for _, r := range rels {
		key := farKey(r.PredicateID, far(r), values)
		if _, ok := seen[key]; ok {
			dupes = append(dupes, r.ID)
			continue
		}
		seen[key] = struct{}{}
	}
	return dupes
}

func farKey(predicate int64, ref common.Ref, values map[int64]string) string {
	if ref.Kind == common.KindValue {
		if k, ok := values[ref.ID]; ok {
			return fmt.Sprintf("%d|%s|%s", predicate, ref.Kind, k)
		}
	}
	return fmt.Sprintf("%d|%s|%d", predicate, ref.Kind, ref.ID)
}
