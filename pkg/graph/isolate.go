package graph

import (
	"context"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/logger"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store"
)

// IsolateResult lists the clones created by Isolate and the representative
// they were merged under. Both are empty when nothing had to be isolated.
type IsolateResult struct {
	Clones []int64 `json:"clones"`
	Master int64   `json:"master,omitempty"`
}

// Isolate splits a concept entity that is referenced by more than one
// relation. Every incoming relation gets its own clone carrying copies of the
// entity's outgoing relations and their targets; the clones are then merged
// so that their shared identity stays recorded. The original entity keeps its
// outgoing relations but is no longer referenced.
func (g *GraphClient) Isolate(ctx context.Context, id int64, addedBy string) (*IsolateResult, error) {
	var res *IsolateResult
	err := g.update(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = g.isolate(ctx, tx, id, addedBy)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(res.Clones) > 0 {
		logger.Info("[Isolate] Isolated concept", "id", id, "clones", len(res.Clones), "master", res.Master)
	}
	return res, nil
}

func (g *GraphClient) isolate(ctx context.Context, tx store.Tx, id int64, addedBy string) (*IsolateResult, error) {
	if err := tx.LockEntities(ctx, []int64{id}); err != nil {
		return nil, err
	}
	ref := common.Ref{Kind: common.KindConcept, ID: id}
	original, err := resolveRef(ctx, tx, ref, true)
	if err != nil {
		return nil, err
	}

	incoming, err := tx.ListRelations(ctx, store.RelationQuery{Target: &ref})
	if err != nil {
		return nil, err
	}
	incoming = withoutSelfLoops(incoming, ref)
	res := &IsolateResult{}
	if len(incoming) <= 1 {
		return res, nil
	}
	outgoing, err := tx.ListRelations(ctx, store.RelationQuery{Source: &ref})
	if err != nil {
		return nil, err
	}

	for _, in := range incoming {
		clone, err := g.cloneEntity(ctx, tx, original)
		if err != nil {
			return nil, err
		}
		cloneRef := common.RefOf(clone)
		for _, out := range outgoing {
			target := cloneRef
			if out.Target != ref {
				far, err := tx.GetEntity(ctx, out.Target.ID, true)
				if err != nil {
					return nil, err
				}
				farClone, err := g.cloneEntity(ctx, tx, far)
				if err != nil {
					return nil, err
				}
				target = common.RefOf(farClone)
			}
			if _, err := tx.InsertRelation(ctx, &common.Relation{
				Source:      cloneRef,
				PredicateID: out.PredicateID,
				Target:      target,
				DataSource:  out.DataSource,
				ContainerID: out.ContainerID,
				CreatedBy:   addedBy,
			}); err != nil {
				return nil, err
			}
		}
		if err := tx.SetRelationTarget(ctx, in.ID, cloneRef); err != nil {
			return nil, err
		}
		res.Clones = append(res.Clones, cloneRef.ID)
	}

	res.Master, err = mergeConcepts(ctx, tx, MergeParams{IDs: res.Clones, AddedBy: addedBy})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// cloneEntity inserts a copy of e. A URI that was derived from e's id is
// derived again for the clone; any other URI is kept.
func (g *GraphClient) cloneEntity(ctx context.Context, tx store.Tx, e common.Entity) (common.Entity, error) {
	b := e.Base()
	derived := b.URI == g.entityURI(b.Namespace, b.Kind, b.ID)
	c := common.Clone(e)
	cb := c.Base()
	cb.ID = 0
	cb.Deleted = false
	if derived {
		cb.URI = ""
	}
	if err := g.insertEntity(ctx, tx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func withoutSelfLoops(rels []common.Relation, ref common.Ref) []common.Relation {
	out := rels[:0:0]
	for _, r := range rels {
		if r.Source != ref {
			out = append(out, r)
		}
	}
	return out
}
