// Package vocab loads schemas, types and fields from TOML files into the
// type registry.
//
// A vocabulary file looks like:
//
//	[[schemas]]
//	uri = "https://schema.org/"
//	name = "Schema.org"
//
//	[[schemas.types]]
//	uri = "https://schema.org/Person"
//	name = "Person"
//	parent = "https://schema.org/Thing"
//
//	[[schemas.fields]]
//	uri = "https://schema.org/birthDate"
//	range = ["value:date"]
//
// Type references are URIs, or value:<type> for the system type of a value
// type. Parents may be declared later in the file or already be registered.
package vocab

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/graph"
	"github.com/OFFIS-RIT/amphora/backend/pkg/logger"
	"github.com/OFFIS-RIT/amphora/backend/pkg/value"

	"github.com/pelletier/go-toml/v2"
)

const valuePrefix = "value:"

type TypeDef struct {
	URI         string `toml:"uri"`
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Parent      string `toml:"parent"`
}

type FieldDef struct {
	URI         string   `toml:"uri"`
	Name        string   `toml:"name"`
	Description string   `toml:"description"`
	Parent      string   `toml:"parent"`
	Domain      []string `toml:"domain"`
	Range       []string `toml:"range"`
}

type SchemaDef struct {
	URI    string     `toml:"uri"`
	Name   string     `toml:"name"`
	Types  []TypeDef  `toml:"types"`
	Fields []FieldDef `toml:"fields"`
}

type File struct {
	Schemas []SchemaDef `toml:"schemas"`
}

// Load reads and parses a vocabulary file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary file '%s': %w", path, err)
	}
	return Parse(data)
}

// Parse parses a vocabulary document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	for i, s := range f.Schemas {
		if s.URI == "" {
			return nil, fmt.Errorf("schema %d has no uri", i)
		}
	}
	return &f, nil
}

// Apply upserts everything declared in f and returns the ids of the declared
// types and fields by URI. Applying the same file twice changes nothing.
func Apply(ctx context.Context, g *graph.GraphClient, f *File) (map[string]int64, error) {
	sys, err := g.EnsureSystemVocabulary(ctx)
	if err != nil {
		return nil, err
	}
	r := &resolver{g: g, sys: sys, ids: make(map[string]int64)}

	for _, s := range f.Schemas {
		schema, err := g.EnsureSchema(ctx, s.URI, s.Name)
		if err != nil {
			return nil, err
		}
		if err := r.applyTypes(ctx, schema.ID, s.Types); err != nil {
			return nil, fmt.Errorf("schema %s: %w", s.URI, err)
		}
	}
	// Fields go last so that domains and ranges may name types of any schema.
	for _, s := range f.Schemas {
		schema, err := g.EnsureSchema(ctx, s.URI, s.Name)
		if err != nil {
			return nil, err
		}
		for _, fd := range s.Fields {
			if err := r.applyField(ctx, schema.ID, fd); err != nil {
				return nil, fmt.Errorf("schema %s: %w", s.URI, err)
			}
		}
		logger.Info("[Vocab] Applied schema", "uri", s.URI, "types", len(s.Types), "fields", len(s.Fields))
	}
	return r.ids, nil
}

type resolver struct {
	g   *graph.GraphClient
	sys *graph.SystemVocabulary
	ids map[string]int64
}

// applyTypes upserts types parent first. A type whose parent is neither
// declared nor registered fails the whole schema.
func (r *resolver) applyTypes(ctx context.Context, schemaID int64, defs []TypeDef) error {
	pending := defs
	for len(pending) > 0 {
		var next []TypeDef
		for _, td := range pending {
			var parent *int64
			if td.Parent != "" {
				id, ok, err := r.lookup(ctx, td.Parent)
				if err != nil {
					return err
				}
				if !ok {
					next = append(next, td)
					continue
				}
				parent = &id
			}
			t, err := r.g.EnsureType(ctx, graph.TypeParams{
				URI:         td.URI,
				Name:        td.Name,
				Description: td.Description,
				ParentID:    parent,
				SchemaID:    &schemaID,
			})
			if err != nil {
				return err
			}
			r.ids[td.URI] = t.ID
		}
		if len(next) == len(pending) {
			return fmt.Errorf("unknown parent type %q of %q: %w", next[0].Parent, next[0].URI, common.ErrNotFound)
		}
		pending = next
	}
	return nil
}

func (r *resolver) applyField(ctx context.Context, schemaID int64, fd FieldDef) error {
	domain, err := r.resolveAll(ctx, fd.Domain)
	if err != nil {
		return fmt.Errorf("domain of %s: %w", fd.URI, err)
	}
	rng, err := r.resolveAll(ctx, fd.Range)
	if err != nil {
		return fmt.Errorf("range of %s: %w", fd.URI, err)
	}
	var parent *int64
	if fd.Parent != "" {
		id, err := r.resolve(ctx, fd.Parent)
		if err != nil {
			return err
		}
		parent = &id
	}
	f, err := r.g.EnsureField(ctx, graph.TypeParams{
		URI:         fd.URI,
		Name:        fd.Name,
		Description: fd.Description,
		ParentID:    parent,
		SchemaID:    &schemaID,
		Domain:      domain,
		Range:       rng,
	})
	if err != nil {
		return err
	}
	r.ids[fd.URI] = f.ID
	return nil
}

func (r *resolver) resolveAll(ctx context.Context, refs []string) ([]int64, error) {
	ids := make([]int64, 0, len(refs))
	for _, ref := range refs {
		id, err := r.resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *resolver) resolve(ctx context.Context, ref string) (int64, error) {
	id, ok, err := r.lookup(ctx, ref)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("unknown type %q: %w", ref, common.ErrNotFound)
	}
	return id, nil
}

// lookup resolves a type reference against this file, the system vocabulary
// and the registry.
func (r *resolver) lookup(ctx context.Context, ref string) (int64, bool, error) {
	if vt, ok := strings.CutPrefix(ref, valuePrefix); ok {
		id, found := r.sys.ValueTypes[value.Type(vt)]
		if !found {
			return 0, false, fmt.Errorf("%w: %q", value.ErrUnsupported, vt)
		}
		return id, true, nil
	}
	if id, ok := r.ids[ref]; ok {
		return id, true, nil
	}
	t, err := r.g.GetTypeByURI(ctx, ref)
	if errors.Is(err, common.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return t.ID, true, nil
}
