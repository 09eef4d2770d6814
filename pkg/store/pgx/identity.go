package pgx

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
)

func (t *pgTx) InsertIdentity(ctx context.Context, i *common.Identity) (int64, error) {
	err := t.db.QueryRow(ctx,
		`INSERT INTO identities (representative, added_by) VALUES ($1, $2) RETURNING id, added_at`,
		i.Representative, i.AddedBy,
	).Scan(&i.ID, &i.AddedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert identity: %w", err)
	}
	i.Entities = common.SortedIDs(i.Entities)
	if _, err := t.db.Exec(ctx,
		`INSERT INTO identity_members (identity_id, entity_id) SELECT $1, unnest($2::bigint[])`,
		i.ID, i.Entities,
	); err != nil {
		return 0, fmt.Errorf("failed to insert identity members: %w", err)
	}
	return i.ID, nil
}

const identitySelect = `
SELECT i.id, i.representative, i.added_by, i.added_at,
	ARRAY(SELECT m.entity_id FROM identity_members m WHERE m.identity_id = i.id ORDER BY m.entity_id)
FROM identities i`

func collectIdentities(rows pgxv5.Rows) ([]common.Identity, error) {
	return pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.Identity, error) {
		var i common.Identity
		err := row.Scan(&i.ID, &i.Representative, &i.AddedBy, &i.AddedAt, &i.Entities)
		return i, err
	})
}

func (t *pgTx) ListIdentities(ctx context.Context, id int64) ([]common.Identity, error) {
	rows, err := t.db.Query(ctx, identitySelect+`
WHERE i.representative = $1
   OR EXISTS (SELECT 1 FROM identity_members m WHERE m.identity_id = i.id AND m.entity_id = $1)
ORDER BY i.id`, id)
	if err != nil {
		return nil, err
	}
	return collectIdentities(rows)
}

func (t *pgTx) ListIdentitiesByRepresentative(ctx context.Context, ids []int64) ([]common.Identity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := t.db.Query(ctx, identitySelect+`
WHERE i.representative = ANY($1)
ORDER BY i.id`, ids)
	if err != nil {
		return nil, err
	}
	return collectIdentities(rows)
}

func (t *pgTx) ReassignRepresentative(ctx context.Context, from []int64, to int64) (int64, error) {
	if len(from) == 0 {
		return 0, nil
	}
	tag, err := t.db.Exec(ctx,
		`UPDATE identities SET representative = $2 WHERE representative = ANY($1) AND representative <> $2`,
		from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to reassign representative to %d: %w", to, err)
	}
	return tag.RowsAffected(), nil
}
