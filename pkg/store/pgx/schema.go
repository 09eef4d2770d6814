package pgx

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
)

func (t *pgTx) UpsertSchema(ctx context.Context, s *common.Schema) (int64, error) {
	err := t.db.QueryRow(ctx, `
INSERT INTO schemas (uri, name) VALUES ($1, $2)
ON CONFLICT (uri) DO UPDATE SET name = EXCLUDED.name
RETURNING id, created_at`, s.URI, s.Name).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert schema %s: %w", s.URI, err)
	}
	return s.ID, nil
}

const upsertTypeSQL = `
INSERT INTO types (uri, name, description, parent_id, schema_id, is_field, domain_ids, range_ids)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (uri) DO UPDATE SET
	name = EXCLUDED.name,
	description = EXCLUDED.description,
	parent_id = EXCLUDED.parent_id,
	schema_id = EXCLUDED.schema_id,
	is_field = EXCLUDED.is_field,
	domain_ids = EXCLUDED.domain_ids,
	range_ids = EXCLUDED.range_ids
RETURNING id, created_at`

func (t *pgTx) UpsertType(ctx context.Context, typ *common.Type) (int64, error) {
	err := t.db.QueryRow(ctx, upsertTypeSQL,
		typ.URI, typ.Name, typ.Description, typ.ParentID, typ.SchemaID, typ.IsField,
		orEmpty(typ.Domain), orEmpty(typ.Range),
	).Scan(&typ.ID, &typ.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert type %s: %w", typ.URI, err)
	}
	return typ.ID, nil
}

const typeColumns = `id, uri, name, description, parent_id, schema_id, is_field, domain_ids, range_ids, created_at`

func scanType(row pgxv5.Row) (*common.Type, error) {
	var t common.Type
	err := row.Scan(&t.ID, &t.URI, &t.Name, &t.Description, &t.ParentID, &t.SchemaID, &t.IsField, &t.Domain, &t.Range, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *pgTx) GetType(ctx context.Context, id int64) (*common.Type, error) {
	typ, err := scanType(t.db.QueryRow(ctx, `SELECT `+typeColumns+` FROM types WHERE id = $1`, id))
	if noRows(err) {
		return nil, common.NotFound("type", id)
	}
	return typ, err
}

func (t *pgTx) GetTypeByURI(ctx context.Context, uri string) (*common.Type, error) {
	typ, err := scanType(t.db.QueryRow(ctx, `SELECT `+typeColumns+` FROM types WHERE uri = $1`, uri))
	if noRows(err) {
		return nil, fmt.Errorf("type %s: %w", uri, common.ErrNotFound)
	}
	return typ, err
}
