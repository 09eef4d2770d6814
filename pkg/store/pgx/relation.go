package pgx

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

const relationColumns = `id, source_kind, source_id, predicate_id, target_kind, target_id, data_source, container_id, deleted, created_by, created_at`

func scanRelation(row pgxv5.Row) (common.Relation, error) {
	var r common.Relation
	var sourceKind, targetKind string
	err := row.Scan(&r.ID, &sourceKind, &r.Source.ID, &r.PredicateID, &targetKind, &r.Target.ID,
		&r.DataSource, &r.ContainerID, &r.Deleted, &r.CreatedBy, &r.CreatedAt)
	r.Source.Kind = common.Kind(sourceKind)
	r.Target.Kind = common.Kind(targetKind)
	return r, err
}

func (t *pgTx) InsertRelation(ctx context.Context, r *common.Relation) (int64, error) {
	err := t.db.QueryRow(ctx, `
INSERT INTO relations (source_kind, source_id, predicate_id, target_kind, target_id, data_source, container_id, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at`,
		string(r.Source.Kind), r.Source.ID, r.PredicateID, string(r.Target.Kind), r.Target.ID,
		r.DataSource, r.ContainerID, r.CreatedBy,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert relation %s -> %s: %w", r.Source, r.Target, err)
	}
	return r.ID, nil
}

func (t *pgTx) GetRelation(ctx context.Context, id int64, includeDeleted bool) (*common.Relation, error) {
	r, err := scanRelation(t.db.QueryRow(ctx,
		`SELECT `+relationColumns+` FROM relations WHERE id = $1 AND ($2 OR NOT deleted)`, id, includeDeleted))
	if noRows(err) {
		return nil, common.NotFound("relation", id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// buildRelationQuery renders q as a keyset-paginated SELECT.
func buildRelationQuery(q store.RelationQuery) (string, []any) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if q.Source != nil {
		where = append(where, "source_id = "+arg(q.Source.ID), "source_kind = "+arg(string(q.Source.Kind)))
	}
	if q.PredicateID != nil {
		where = append(where, "predicate_id = "+arg(*q.PredicateID))
	}
	if q.Target != nil {
		where = append(where, "target_id = "+arg(q.Target.ID), "target_kind = "+arg(string(q.Target.Kind)))
	}
	if !q.IncludeDeleted {
		where = append(where, "NOT deleted")
	}
	if q.AfterID > 0 {
		where = append(where, "id > "+arg(q.AfterID))
	}

	var b strings.Builder
	b.WriteString("SELECT " + relationColumns + " FROM relations")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY id")
	if q.Limit > 0 {
		b.WriteString(" LIMIT " + arg(q.Limit))
	}
	return b.String(), args
}

func (t *pgTx) ListRelations(ctx context.Context, q store.RelationQuery) ([]common.Relation, error) {
	sql, args := buildRelationQuery(q)
	rows, err := t.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.Relation
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *pgTx) SetRelationTarget(ctx context.Context, id int64, target common.Ref) error {
	tag, err := t.db.Exec(ctx, `UPDATE relations SET target_kind = $2, target_id = $3 WHERE id = $1`,
		id, string(target.Kind), target.ID)
	if err != nil {
		return fmt.Errorf("failed to retarget relation %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return common.NotFound("relation", id)
	}
	return nil
}

func (t *pgTx) SoftDeleteRelation(ctx context.Context, id int64) error {
	tag, err := t.db.Exec(ctx, `UPDATE relations SET deleted = true WHERE id = $1 AND NOT deleted`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.NotFound("relation", id)
	}
	return nil
}

func (t *pgTx) DeleteRelations(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := t.db.Exec(ctx, `DELETE FROM relations WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const repointRelationsSQL = `
UPDATE relations SET
	source_id = CASE WHEN source_kind = $1 AND source_id = ANY($2) THEN $3 ELSE source_id END,
	target_id = CASE WHEN target_kind = $1 AND target_id = ANY($2) THEN $3 ELSE target_id END
WHERE (source_kind = $1 AND source_id = ANY($2))
   OR (target_kind = $1 AND target_id = ANY($2))`

func (t *pgTx) RepointRelations(ctx context.Context, kind common.Kind, from []int64, to int64) (int64, error) {
	if len(from) == 0 {
		return 0, nil
	}
	tag, err := t.db.Exec(ctx, repointRelationsSQL, string(kind), from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to repoint relations to %d: %w", to, err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) InsertContentRelation(ctx context.Context, cr *common.ContentRelation) (int64, error) {
	err := t.db.QueryRow(ctx, `
INSERT INTO content_relations (for_resource, content_resource, content_type, content_encoding, container_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at`,
		cr.ForResource, cr.ContentResource, cr.ContentType, cr.ContentEncoding, cr.ContainerID,
	).Scan(&cr.ID, &cr.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert content relation: %w", err)
	}
	return cr.ID, nil
}

func (t *pgTx) ListContentRelations(ctx context.Context, forResource int64, contentType string) ([]common.ContentRelation, error) {
	rows, err := t.db.Query(ctx, `
SELECT id, for_resource, content_resource, content_type, content_encoding, container_id, created_at
FROM content_relations
WHERE for_resource = $1 AND ($2 = '' OR content_type = $2)
ORDER BY id`, forResource, contentType)
	if err != nil {
		return nil, err
	}
	return pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.ContentRelation, error) {
		var cr common.ContentRelation
		err := row.Scan(&cr.ID, &cr.ForResource, &cr.ContentResource, &cr.ContentType, &cr.ContentEncoding, &cr.ContainerID, &cr.CreatedAt)
		return cr, err
	})
}

const repointContentSQL = `
UPDATE content_relations SET
	for_resource = CASE WHEN for_resource = ANY($1) THEN $2 ELSE for_resource END,
	content_resource = CASE WHEN content_resource = ANY($1) THEN $2 ELSE content_resource END
WHERE for_resource = ANY($1) OR content_resource = ANY($1)`

func (t *pgTx) RepointContentRelations(ctx context.Context, from []int64, to int64) (int64, error) {
	if len(from) == 0 {
		return 0, nil
	}
	tag, err := t.db.Exec(ctx, repointContentSQL, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to repoint content relations to %d: %w", to, err)
	}
	return tag.RowsAffected(), nil
}
