package graph

import (
	"context"
	"errors"
	"iter"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/logger"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store"
)

// AggregateOptions filters aggregated content. An empty ContentType matches
// every content relation.
type AggregateOptions struct {
	ContentType string
}

// AggregateContent yields the content resources reachable from each root.
// For a root the part-of closure is walked depth first, root included, and
// every entity's content relations are followed. A content resource is
// yielded at most once per root. Roots that no longer exist are skipped.
//
// The closure of one root is computed in a single read transaction; content
// is then read entity by entity, and entities deleted in the meantime are
// skipped. Nothing is held open while the consumer handles a resource.
func (g *GraphClient) AggregateContent(ctx context.Context, roots []int64, opts AggregateOptions) iter.Seq2[*common.Resource, error] {
	return func(yield func(*common.Resource, error) bool) {
		for _, root := range roots {
			closure, err := g.partClosure(ctx, root)
			if errors.Is(err, common.ErrNotFound) {
				logger.Warn("[Aggregate] Root not found, skipping", "root", root)
				continue
			}
			if err != nil {
				yield(nil, err)
				return
			}

			seen := make(map[int64]struct{})
			for _, id := range closure {
				if err := ctx.Err(); err != nil {
					yield(nil, err)
					return
				}
				contents, err := g.contentResources(ctx, id, opts.ContentType)
				if err != nil {
					yield(nil, err)
					return
				}
				for _, res := range contents {
					if _, ok := seen[res.ID]; ok {
						continue
					}
					seen[res.ID] = struct{}{}
					if !yield(res, nil) {
						return
					}
				}
			}
		}
	}
}

// partClosure returns root and every live entity that is transitively part
// of it, in depth-first preorder. Children are visited in the order of the
// relations linking them. An id is never visited twice; reaching an id that
// is still on the current path means the part-of graph has a cycle, which
// is logged and cut.
func (g *GraphClient) partClosure(ctx context.Context, root int64) ([]int64, error) {
	var order []int64
	err := g.read(ctx, func(ctx context.Context, tx store.Tx) error {
		e, err := tx.GetEntity(ctx, root, false)
		if err != nil {
			return err
		}
		order = []int64{root}

		field, err := tx.GetTypeByURI(ctx, PartOfURI)
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		type frame struct {
			id    int64
			parts []common.Ref
		}
		children := func(ref common.Ref) ([]common.Ref, error) {
			rels, err := tx.ListRelations(ctx, store.RelationQuery{Target: &ref, PredicateID: &field.ID})
			if err != nil {
				return nil, err
			}
			parts := make([]common.Ref, len(rels))
			for i, r := range rels {
				parts[i] = r.Source
			}
			return parts, nil
		}

		visited := map[int64]struct{}{root: {}}
		onPath := map[int64]struct{}{root: {}}
		parts, err := children(common.RefOf(e))
		if err != nil {
			return err
		}
		stack := []*frame{{id: root, parts: parts}}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if len(top.parts) == 0 {
				delete(onPath, top.id)
				stack = stack[:len(stack)-1]
				continue
			}
			part := top.parts[0]
			top.parts = top.parts[1:]

			if _, ok := visited[part.ID]; ok {
				if _, cycle := onPath[part.ID]; cycle {
					logger.Warn("[Aggregate] Part-of cycle, not descending", "root", root, "id", part.ID, "err", common.ErrCycleDetected)
				}
				continue
			}
			if _, err := resolveRef(ctx, tx, part, false); err != nil {
				if errors.Is(err, common.ErrNotFound) {
					continue
				}
				return err
			}
			visited[part.ID] = struct{}{}
			onPath[part.ID] = struct{}{}
			order = append(order, part.ID)

			parts, err := children(part)
			if err != nil {
				return err
			}
			stack = append(stack, &frame{id: part.ID, parts: parts})
		}
		return nil
	})
	return order, err
}

// contentResources returns the live content resources linked to id.
func (g *GraphClient) contentResources(ctx context.Context, id int64, contentType string) ([]*common.Resource, error) {
	var out []*common.Resource
	err := g.read(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetEntity(ctx, id, false); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil
			}
			return err
		}
		crs, err := tx.ListContentRelations(ctx, id, contentType)
		if err != nil {
			return err
		}
		for _, cr := range crs {
			e, err := tx.GetEntity(ctx, cr.ContentResource, false)
			if errors.Is(err, common.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if r, ok := e.(*common.Resource); ok {
				out = append(out, r)
			}
		}
		return nil
	})
	return out, err
}
