package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store"
	"github.com/OFFIS-RIT/amphora/backend/pkg/value"
)

const (
	SystemSchemaURI  = "urn:amphora:schema:system"
	SystemSchemaName = "Amphora system"

	// PartOfURI identifies the field that links a part to its container.
	PartOfURI = "http://purl.org/dc/terms/isPartOf"
)

var systemTypeURIs = map[value.Type]string{
	value.Int:      "http://www.w3.org/2001/XMLSchema#integer",
	value.Float:    "http://www.w3.org/2001/XMLSchema#double",
	value.Text:     "http://www.w3.org/2001/XMLSchema#string",
	value.DateTime: "http://www.w3.org/2001/XMLSchema#dateTime",
	value.Date:     "http://www.w3.org/2001/XMLSchema#date",
	value.Bool:     "http://www.w3.org/2001/XMLSchema#boolean",
}

// SystemTypeURI returns the URI of the type every value of t is classified as.
func SystemTypeURI(t value.Type) (string, error) {
	uri, ok := systemTypeURIs[t]
	if !ok {
		return "", fmt.Errorf("%w: %q", value.ErrUnsupported, t)
	}
	return uri, nil
}

// TypeParams describes a type or field to upsert. Domain and Range are only
// honoured for fields.
type TypeParams struct {
	URI         string
	Name        string
	Description string
	ParentID    *int64
	SchemaID    *int64
	Domain      []int64
	Range       []int64
}

// EnsureSchema creates the schema identified by uri, or renames it if it exists.
func (g *GraphClient) EnsureSchema(ctx context.Context, uri, name string) (*common.Schema, error) {
	if uri == "" {
		return nil, errors.New("schema uri is empty")
	}
	s := &common.Schema{URI: uri, Name: name}
	err := g.update(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.UpsertSchema(ctx, s)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert schema %s: %w", uri, err)
	}
	return s, nil
}

// EnsureType upserts a non-field type by URI.
func (g *GraphClient) EnsureType(ctx context.Context, params TypeParams) (*common.Type, error) {
	return g.ensureType(ctx, params, false)
}

// EnsureField upserts a field by URI. Fields are types that may be used as
// relation predicates.
func (g *GraphClient) EnsureField(ctx context.Context, params TypeParams) (*common.Type, error) {
	return g.ensureType(ctx, params, true)
}

// ensureType coalesces concurrent upserts of the same definition. The store's
// unique constraint on uri makes the upsert itself idempotent.
func (g *GraphClient) ensureType(ctx context.Context, params TypeParams, isField bool) (*common.Type, error) {
	if params.URI == "" {
		return nil, errors.New("type uri is empty")
	}
	t := &common.Type{
		URI:         params.URI,
		Name:        params.Name,
		Description: params.Description,
		ParentID:    params.ParentID,
		SchemaID:    params.SchemaID,
		IsField:     isField,
	}
	if isField {
		t.Domain = common.SortedIDs(params.Domain)
		t.Range = common.SortedIDs(params.Range)
	}

	key := fmt.Sprintf("%s|%t|%s|%s|%v|%v|%v|%v", t.URI, isField, t.Name, t.Description, ptrKey(t.ParentID), ptrKey(t.SchemaID), t.Domain, t.Range)
	res, err, _ := g.registry.Do(key, func() (any, error) {
		err := g.update(ctx, func(ctx context.Context, tx store.Tx) error {
			return upsertType(ctx, tx, t)
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert type %s: %w", params.URI, err)
	}
	out := *res.(*common.Type)
	out.Domain = slices.Clone(out.Domain)
	out.Range = slices.Clone(out.Range)
	return &out, nil
}

func upsertType(ctx context.Context, tx store.Tx, t *common.Type) error {
	for _, id := range append(slices.Clone(t.Domain), t.Range...) {
		if _, err := tx.GetType(ctx, id); err != nil {
			return err
		}
	}
	if t.ParentID != nil {
		existing, err := tx.GetTypeByURI(ctx, t.URI)
		switch {
		case errors.Is(err, common.ErrNotFound):
			if _, err := tx.GetType(ctx, *t.ParentID); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			ok, err := isAncestor(ctx, tx, existing.ID, *t.ParentID)
			if err != nil {
				return err
			}
			if ok {
				return common.NewValidationError(common.ErrCycleDetected, "type would become its own ancestor", existing.ID, *t.ParentID)
			}
		}
	}
	_, err := tx.UpsertType(ctx, t)
	return err
}

// isAncestor reports whether ancestor appears on the parent chain starting at
// id, id itself included.
func isAncestor(ctx context.Context, tx store.Tx, ancestor, id int64) (bool, error) {
	seen := make(map[int64]struct{})
	cur := &id
	for cur != nil {
		if *cur == ancestor {
			return true, nil
		}
		if _, ok := seen[*cur]; ok {
			return false, nil
		}
		seen[*cur] = struct{}{}
		t, err := tx.GetType(ctx, *cur)
		if err != nil {
			return false, err
		}
		cur = t.ParentID
	}
	return false, nil
}

// SystemVocabulary holds the ids of the types the engine itself relies on.
type SystemVocabulary struct {
	Schema      *common.Schema
	ValueTypes  map[value.Type]int64
	PartOfField int64
}

// EnsureSystemVocabulary creates the system schema, one type per value type
// and the part-of field. It is safe to call on every start.
func (g *GraphClient) EnsureSystemVocabulary(ctx context.Context) (*SystemVocabulary, error) {
	schema, err := g.EnsureSchema(ctx, SystemSchemaURI, SystemSchemaName)
	if err != nil {
		return nil, err
	}
	v := &SystemVocabulary{
		Schema:     schema,
		ValueTypes: make(map[value.Type]int64, len(value.Types)),
	}
	for _, vt := range value.Types {
		uri := systemTypeURIs[vt]
		t, err := g.EnsureType(ctx, TypeParams{URI: uri, Name: string(vt), SchemaID: &schema.ID})
		if err != nil {
			return nil, err
		}
		v.ValueTypes[vt] = t.ID
	}
	field, err := g.EnsureField(ctx, TypeParams{URI: PartOfURI, Name: "is part of", SchemaID: &schema.ID})
	if err != nil {
		return nil, err
	}
	v.PartOfField = field.ID
	return v, nil
}

// systemType resolves, creating it if needed, the type of values of type vt.
func systemType(ctx context.Context, tx store.Tx, vt value.Type) (int64, error) {
	uri, err := SystemTypeURI(vt)
	if err != nil {
		return 0, err
	}
	t, err := tx.GetTypeByURI(ctx, uri)
	if err == nil {
		return t.ID, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return 0, err
	}
	return tx.UpsertType(ctx, &common.Type{URI: uri, Name: string(vt)})
}

// GetType returns the type or field with the given id.
func (g *GraphClient) GetType(ctx context.Context, id int64) (*common.Type, error) {
	var t *common.Type
	err := g.read(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		t, err = tx.GetType(ctx, id)
		return err
	})
	return t, err
}

// GetTypeByURI returns the type or field with the given URI.
func (g *GraphClient) GetTypeByURI(ctx context.Context, uri string) (*common.Type, error) {
	var t *common.Type
	err := g.read(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		t, err = tx.GetTypeByURI(ctx, uri)
		return err
	})
	return t, err
}

func ptrKey(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprint(*id)
}
