package graph

import (
	"context"
	"fmt"
	"iter"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/logger"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store"
)

// RelationParams describes a relation to create.
type RelationParams struct {
	Source      common.Ref
	PredicateID int64
	Target      common.Ref
	DataSource  string
	ContainerID *int64
	CreatedBy   string
}

// CreateRelation stores a new relation after checking that the predicate is a
// field and that source and target types fall within its domain and range.
func (g *GraphClient) CreateRelation(ctx context.Context, params RelationParams) (int64, error) {
	r := &common.Relation{
		Source:      params.Source,
		PredicateID: params.PredicateID,
		Target:      params.Target,
		DataSource:  params.DataSource,
		ContainerID: params.ContainerID,
		CreatedBy:   params.CreatedBy,
	}
	err := g.update(ctx, func(ctx context.Context, tx store.Tx) error {
		return g.insertRelation(ctx, tx, r)
	})
	if err != nil {
		return 0, err
	}
	logger.Debug("[Relation] Created", "id", r.ID, "source", r.Source, "predicate", r.PredicateID, "target", r.Target)
	return r.ID, nil
}

func (g *GraphClient) insertRelation(ctx context.Context, tx store.Tx, r *common.Relation) error {
	predicate, err := tx.GetType(ctx, r.PredicateID)
	if err != nil {
		return err
	}
	if !predicate.IsField {
		return common.NewValidationError(common.ErrNotAField, predicate.URI, predicate.ID)
	}
	source, err := resolveRef(ctx, tx, r.Source, false)
	if err != nil {
		return err
	}
	target, err := resolveRef(ctx, tx, r.Target, false)
	if err != nil {
		return err
	}
	ok, err := g.admits(ctx, tx, predicate.Domain, source.Base().TypeID, predicate.InDomain)
	if err != nil {
		return err
	}
	if !ok {
		return common.NewValidationError(common.ErrDomainViolation,
			fmt.Sprintf("%s not in domain of %s", r.Source, predicate.URI), r.Source.ID, predicate.ID)
	}
	ok, err = g.admits(ctx, tx, predicate.Range, target.Base().TypeID, predicate.InRange)
	if err != nil {
		return err
	}
	if !ok {
		return common.NewValidationError(common.ErrRangeViolation,
			fmt.Sprintf("%s not in range of %s", r.Target, predicate.URI), r.Target.ID, predicate.ID)
	}
	_, err = tx.InsertRelation(ctx, r)
	return err
}

// admits applies the exact membership check and, when the client accepts
// subtypes, falls back to walking typeID's parent chain.
func (g *GraphClient) admits(ctx context.Context, tx store.Tx, set []int64, typeID *int64, exact func(*int64) bool) (bool, error) {
	if exact(typeID) {
		return true, nil
	}
	if !g.subtypes || typeID == nil {
		return false, nil
	}
	for _, allowed := range set {
		ok, err := isAncestor(ctx, tx, allowed, *typeID)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// QueryRelations returns a lazy sequence of the relations matching q, in
// ascending id order. Pages of relations are fetched on demand, each in its
// own short read transaction, so a consumer may stop at any time.
// q.Limit caps the total number of relations yielded.
func (g *GraphClient) QueryRelations(ctx context.Context, q store.RelationQuery) iter.Seq2[common.Relation, error] {
	return func(yield func(common.Relation, error) bool) {
		if !q.Bounded() {
			yield(common.Relation{}, common.NewValidationError(common.ErrUnboundedQuery, ""))
			return
		}
		limit := q.Limit
		page := q
		page.Limit = g.pageSize
		yielded := 0
		for {
			if err := ctx.Err(); err != nil {
				yield(common.Relation{}, err)
				return
			}
			var rels []common.Relation
			err := g.read(ctx, func(ctx context.Context, tx store.Tx) error {
				var err error
				rels, err = tx.ListRelations(ctx, page)
				return err
			})
			if err != nil {
				yield(common.Relation{}, err)
				return
			}
			for _, r := range rels {
				if !yield(r, nil) {
					return
				}
				yielded++
				if limit > 0 && yielded >= limit {
					return
				}
			}
			if len(rels) < page.Limit {
				return
			}
			page.AfterID = rels[len(rels)-1].ID
		}
	}
}

// ListRelations collects QueryRelations into a slice.
func (g *GraphClient) ListRelations(ctx context.Context, q store.RelationQuery) ([]common.Relation, error) {
	var out []common.Relation
	for r, err := range g.QueryRelations(ctx, q) {
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// GetRelation returns a live relation.
func (g *GraphClient) GetRelation(ctx context.Context, id int64) (*common.Relation, error) {
	var r *common.Relation
	err := g.read(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		r, err = tx.GetRelation(ctx, id, false)
		return err
	})
	return r, err
}

// SoftDeleteRelation hides a relation from queries that do not ask for deleted rows.
func (g *GraphClient) SoftDeleteRelation(ctx context.Context, id int64) error {
	return g.update(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SoftDeleteRelation(ctx, id)
	})
}

// ContentRelationParams describes the link from a resource to the content
// resource holding its payload. ContentType defaults to the content type of
// the content resource.
type ContentRelationParams struct {
	ForResource     int64
	ContentResource int64
	ContentType     string
	ContentEncoding string
	ContainerID     *int64
}

// CreateContentRelation links a resource to a content resource.
func (g *GraphClient) CreateContentRelation(ctx context.Context, params ContentRelationParams) (int64, error) {
	cr := &common.ContentRelation{
		ForResource:     params.ForResource,
		ContentResource: params.ContentResource,
		ContentType:     params.ContentType,
		ContentEncoding: params.ContentEncoding,
		ContainerID:     params.ContainerID,
	}
	err := g.update(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := resolveRef(ctx, tx, common.Ref{Kind: common.KindResource, ID: cr.ForResource}, false); err != nil {
			return err
		}
		e, err := resolveRef(ctx, tx, common.Ref{Kind: common.KindResource, ID: cr.ContentResource}, false)
		if err != nil {
			return err
		}
		content := e.(*common.Resource)
		if !content.ContentResource {
			return common.NewValidationError(common.ErrKindMismatch, "not a content resource", content.ID)
		}
		if cr.ContentType == "" {
			cr.ContentType = content.ContentType
		}
		_, err = tx.InsertContentRelation(ctx, cr)
		return err
	})
	if err != nil {
		return 0, err
	}
	return cr.ID, nil
}
