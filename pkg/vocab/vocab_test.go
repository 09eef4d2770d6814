package vocab

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/graph"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store/memory"
	"github.com/OFFIS-RIT/amphora/backend/pkg/value"
)

const schemaOrg = `
[[schemas]]
uri = "https://schema.org/"
name = "Schema.org"

[[schemas.types]]
uri = "https://schema.org/Person"
name = "Person"
parent = "https://schema.org/Thing"

[[schemas.types]]
uri = "https://schema.org/Thing"
name = "Thing"

[[schemas.fields]]
uri = "https://schema.org/author"
name = "author"
range = ["https://schema.org/Person"]

[[schemas.fields]]
uri = "https://schema.org/birthDate"
domain = ["https://schema.org/Person"]
range = ["value:date"]
`

func newClient(t *testing.T) *graph.GraphClient {
	t.Helper()
	g, err := graph.NewGraphClient(graph.NewGraphClientParams{Store: memory.New()})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return g
}

func TestLoadAndApply(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "schema.toml")
	if err := os.WriteFile(path, []byte(schemaOrg), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(f.Schemas) != 1 || len(f.Schemas[0].Types) != 2 || len(f.Schemas[0].Fields) != 2 {
		t.Fatalf("unexpected parse result: %+v", f)
	}

	g := newClient(t)
	ids, err := Apply(ctx, g, f)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	person, err := g.GetType(ctx, ids["https://schema.org/Person"])
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if person.ParentID == nil || *person.ParentID != ids["https://schema.org/Thing"] {
		t.Fatalf("expected Person to descend from Thing, got %v", person.ParentID)
	}

	birth, err := g.GetTypeByURI(ctx, "https://schema.org/birthDate")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	date, err := g.GetTypeByURI(ctx, "http://www.w3.org/2001/XMLSchema#date")
	if err != nil {
		t.Fatalf("expected system date type, got %v", err)
	}
	if !birth.IsField || !slices.Equal(birth.Range, []int64{date.ID}) {
		t.Fatalf("expected birthDate range [%d], got %v", date.ID, birth.Range)
	}

	again, err := Apply(ctx, g, f)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for uri, id := range ids {
		if again[uri] != id {
			t.Fatalf("expected %s to keep id %d, got %d", uri, id, again[uri])
		}
	}
}

func TestApply_UnknownReferences(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{
			name: "unknown parent",
			doc: `[[schemas]]
uri = "urn:test"
[[schemas.types]]
uri = "urn:test:A"
parent = "urn:test:Missing"`,
			wantErr: common.ErrNotFound,
		},
		{
			name: "unknown range",
			doc: `[[schemas]]
uri = "urn:test"
[[schemas.fields]]
uri = "urn:test:f"
range = ["urn:test:Missing"]`,
			wantErr: common.ErrNotFound,
		},
		{
			name: "unknown value type",
			doc: `[[schemas]]
uri = "urn:test"
[[schemas.fields]]
uri = "urn:test:f"
range = ["value:decimal"]`,
			wantErr: value.ErrUnsupported,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse([]byte(tt.doc))
			if err != nil {
				t.Fatalf("expected no parse error, got %v", err)
			}
			if _, err := Apply(context.Background(), newClient(t), f); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParse_RequiresSchemaURI(t *testing.T) {
	if _, err := Parse([]byte("[[schemas]]\nname = \"x\"\n")); err == nil {
		t.Fatalf("expected error for schema without uri")
	}
}
