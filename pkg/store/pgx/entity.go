package pgx

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/amphora/backend/internal/util"
	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store"
	"github.com/OFFIS-RIT/amphora/backend/pkg/value"

	pgxv5 "github.com/jackc/pgx/v5"
)

// entityBatchSize bounds the id array sent in a single ANY($1) lookup.
const entityBatchSize = 5000

const entityColumns = `id, kind, name, uri, namespace, type_id, container_id, deleted, created_by, created_at, updated_at,
	content_resource, external, external_source, location, file_key, content_type,
	description, part_of_id, concept_uri, value_type, payload`

// entityRow is the flat row layout shared by all kinds. Columns that do not
// apply to a kind hold their zero value.
type entityRow struct {
	ID          int64
	Kind        string
	Name        string
	URI         string
	Namespace   string
	TypeID      *int64
	ContainerID *int64
	Deleted     bool
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	ContentResource bool
	External        bool
	ExternalSource  string
	Location        string
	FileKey         string
	ContentType     string

	Description string
	PartOfID    *int64

	ConceptURI string

	ValueType string
	Payload   string
}

func (r *entityRow) scanTargets() []any {
	return []any{
		&r.ID, &r.Kind, &r.Name, &r.URI, &r.Namespace, &r.TypeID, &r.ContainerID, &r.Deleted, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt,
		&r.ContentResource, &r.External, &r.ExternalSource, &r.Location, &r.FileKey, &r.ContentType,
		&r.Description, &r.PartOfID, &r.ConceptURI, &r.ValueType, &r.Payload,
	}
}

func rowFromEntity(e common.Entity) entityRow {
	b := e.Base()
	r := entityRow{
		ID:          b.ID,
		Kind:        string(common.KindOf(e)),
		Name:        util.SanitizePostgresText(b.Name),
		URI:         b.URI,
		Namespace:   b.Namespace,
		TypeID:      b.TypeID,
		ContainerID: b.ContainerID,
		Deleted:     b.Deleted,
		CreatedBy:   b.CreatedBy,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
	switch t := e.(type) {
	case *common.Resource:
		r.ContentResource = t.ContentResource
		r.External = t.External
		r.ExternalSource = t.ExternalSource
		r.Location = t.Location
		r.FileKey = t.FileKey
		r.ContentType = t.ContentType
	case *common.Collection:
		r.Description = util.SanitizePostgresText(t.Description)
		r.PartOfID = t.PartOfID
	case *common.ConceptEntity:
		r.ConceptURI = t.ConceptURI
	case *common.Value:
		r.ValueType = string(t.ValueType)
		r.Payload = util.SanitizePostgresText(t.Payload)
	}
	return r
}

func (r entityRow) entity() (common.Entity, error) {
	kind, err := common.ParseKind(r.Kind)
	if err != nil {
		return nil, err
	}
	e, err := common.New(kind)
	if err != nil {
		return nil, err
	}
	*e.Base() = common.EntityBase{
		ID:          r.ID,
		Kind:        kind,
		Name:        r.Name,
		URI:         r.URI,
		Namespace:   r.Namespace,
		TypeID:      r.TypeID,
		ContainerID: r.ContainerID,
		Deleted:     r.Deleted,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	switch t := e.(type) {
	case *common.Resource:
		t.ContentResource = r.ContentResource
		t.External = r.External
		t.ExternalSource = r.ExternalSource
		t.Location = r.Location
		t.FileKey = r.FileKey
		t.ContentType = r.ContentType
	case *common.Collection:
		t.Description = r.Description
		t.PartOfID = r.PartOfID
	case *common.ConceptEntity:
		t.ConceptURI = r.ConceptURI
	case *common.Value:
		t.ValueType = value.Type(r.ValueType)
		t.Payload = r.Payload
	}
	return e, nil
}

func scanEntity(row pgxv5.Row) (common.Entity, error) {
	var r entityRow
	if err := row.Scan(r.scanTargets()...); err != nil {
		return nil, err
	}
	return r.entity()
}

const insertEntitySQL = `
INSERT INTO entities (
	kind, name, uri, namespace, type_id, container_id, deleted, created_by,
	content_resource, external, external_source, location, file_key, content_type,
	description, part_of_id, concept_uri, value_type, payload
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
RETURNING id, created_at, updated_at`

func (t *pgTx) InsertEntity(ctx context.Context, e common.Entity) (int64, error) {
	b := e.Base()
	if common.KindOf(e) != b.Kind {
		return 0, common.ErrKindMismatch
	}
	r := rowFromEntity(e)
	err := t.db.QueryRow(ctx, insertEntitySQL,
		r.Kind, r.Name, r.URI, r.Namespace, r.TypeID, r.ContainerID, r.Deleted, r.CreatedBy,
		r.ContentResource, r.External, r.ExternalSource, r.Location, r.FileKey, r.ContentType,
		r.Description, r.PartOfID, r.ConceptURI, r.ValueType, r.Payload,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s: %w", r.Kind, err)
	}
	return b.ID, nil
}

func (t *pgTx) GetEntity(ctx context.Context, id int64, includeDeleted bool) (common.Entity, error) {
	e, err := scanEntity(t.db.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id = $1 AND ($2 OR NOT deleted)`, id, includeDeleted))
	if noRows(err) {
		return nil, common.NotFound("entity", id)
	}
	return e, err
}

func (t *pgTx) GetEntities(ctx context.Context, ids []int64, includeDeleted bool) ([]common.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	sorted := common.SortedIDs(ids)

	var out []common.Entity
	err := store.ChunkRange(len(sorted), entityBatchSize, func(start, end int) error {
		rows, err := t.db.Query(ctx,
			`SELECT `+entityColumns+` FROM entities WHERE id = ANY($1) AND ($2 OR NOT deleted) ORDER BY id`,
			sorted[start:end], includeDeleted)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanEntity(rows)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	return out, err
}

const updateEntitySQL = `
UPDATE entities SET
	name = $2, uri = $3, namespace = $4, type_id = $5, container_id = $6, deleted = $7,
	content_resource = $8, external = $9, external_source = $10, location = $11, file_key = $12, content_type = $13,
	description = $14, part_of_id = $15, concept_uri = $16, value_type = $17, payload = $18,
	updated_at = now()
WHERE id = $1
RETURNING updated_at`

func (t *pgTx) UpdateEntity(ctx context.Context, e common.Entity) error {
	b := e.Base()
	var kind string
	err := t.db.QueryRow(ctx, `SELECT kind FROM entities WHERE id = $1 FOR UPDATE`, b.ID).Scan(&kind)
	if noRows(err) {
		return common.NotFound("entity", b.ID)
	}
	if err != nil {
		return err
	}
	if common.Kind(kind) != common.KindOf(e) {
		return common.NewValidationError(common.ErrKindMismatch, "kind is fixed at creation", b.ID)
	}

	r := rowFromEntity(e)
	return t.db.QueryRow(ctx, updateEntitySQL,
		r.ID, r.Name, r.URI, r.Namespace, r.TypeID, r.ContainerID, r.Deleted,
		r.ContentResource, r.External, r.ExternalSource, r.Location, r.FileKey, r.ContentType,
		r.Description, r.PartOfID, r.ConceptURI, r.ValueType, r.Payload,
	).Scan(&b.UpdatedAt)
}

func (t *pgTx) SoftDeleteEntity(ctx context.Context, id int64) error {
	tag, err := t.db.Exec(ctx, `UPDATE entities SET deleted = true, updated_at = now() WHERE id = $1 AND NOT deleted`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.NotFound("entity", id)
	}
	return nil
}

func (t *pgTx) DeleteEntities(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := t.db.Exec(ctx, `DELETE FROM entities WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete entities: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) CountEntities(ctx context.Context) (int64, error) {
	var n int64
	err := t.db.QueryRow(ctx, `SELECT count(*) FROM entities`).Scan(&n)
	return n, err
}

func (t *pgTx) InsertContainer(ctx context.Context, c *common.Container) (int64, error) {
	err := t.db.QueryRow(ctx,
		`INSERT INTO containers (primary_id, part_of_id, created_by) VALUES ($1, $2, $3) RETURNING id, created_at`,
		c.PrimaryID, c.PartOfID, c.CreatedBy,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert container: %w", err)
	}
	return c.ID, nil
}

// MoveContainer reassigns every row held by container from to container to.
func (t *pgTx) MoveContainer(ctx context.Context, from, to int64) error {
	if from == to {
		return nil
	}
	for _, table := range []string{"entities", "relations", "content_relations"} {
		if _, err := t.db.Exec(ctx, `UPDATE `+table+` SET container_id = $2 WHERE container_id = $1`, from, to); err != nil {
			return fmt.Errorf("failed to move %s from container %d: %w", table, from, err)
		}
	}
	return nil
}

func (t *pgTx) GetContainer(ctx context.Context, id int64) (*common.Container, error) {
	var c common.Container
	err := t.db.QueryRow(ctx,
		`SELECT id, primary_id, part_of_id, created_by, created_at FROM containers WHERE id = $1`, id,
	).Scan(&c.ID, &c.PrimaryID, &c.PartOfID, &c.CreatedBy, &c.CreatedAt)
	if noRows(err) {
		return nil, common.NotFound("container", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get container %d: %w", id, err)
	}
	return &c, nil
}

func (t *pgTx) RepointEntityReferences(ctx context.Context, from []int64, to int64) (int64, error) {
	if len(from) == 0 {
		return 0, nil
	}
	var n int64
	for _, stmt := range []string{
		`UPDATE containers SET primary_id = $2 WHERE primary_id = ANY($1)`,
		`UPDATE entities SET part_of_id = $2 WHERE part_of_id = ANY($1)`,
	} {
		tag, err := t.db.Exec(ctx, stmt, from, to)
		if err != nil {
			return n, fmt.Errorf("failed to repoint references to %d: %w", to, err)
		}
		n += tag.RowsAffected()
	}
	return n, nil
}
