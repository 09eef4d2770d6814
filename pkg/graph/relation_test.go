package graph

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store/memory"
	"github.com/OFFIS-RIT/amphora/backend/pkg/value"
)

func TestCreateRelation_DomainAndRange(t *testing.T) {
	ctx := context.Background()
	g := newTestClient(t)

	vocab, err := g.EnsureSystemVocabulary(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	person, _ := g.EnsureType(ctx, TypeParams{URI: "https://schema.org/Person"})
	place, _ := g.EnsureType(ctx, TypeParams{URI: "https://schema.org/Place"})
	book, _ := g.EnsureType(ctx, TypeParams{URI: "https://schema.org/Book"})

	author := mustField(t, g, "https://schema.org/author", []int64{book.ID}, []int64{person.ID})
	title := mustField(t, g, "https://schema.org/name", nil, []int64{vocab.ValueTypes[value.Text]})

	origin, _ := g.CreateEntity(ctx, &common.Resource{EntityBase: common.EntityBase{Name: "On the Origin of Species", TypeID: &book.ID}})
	darwin, _ := g.CreateEntity(ctx, &common.ConceptEntity{EntityBase: common.EntityBase{Name: "Darwin", TypeID: &person.ID}})
	london, _ := g.CreateEntity(ctx, &common.ConceptEntity{EntityBase: common.EntityBase{Name: "London", TypeID: &place.ID}})
	untyped := mustConcept(t, g, "Someone", "")
	text, _ := g.CreateValue(ctx, "On the Origin of Species", "")
	year, _ := g.CreateValue(ctx, 1859, "")

	tests := []struct {
		name      string
		source    common.Ref
		predicate int64
		target    common.Ref
		wantErr   error
		wantIDs   []int64
	}{
		{name: "valid", source: resourceRef(origin), predicate: author, target: conceptRef(darwin)},
		{name: "target outside range", source: resourceRef(origin), predicate: author, target: conceptRef(london), wantErr: common.ErrRangeViolation, wantIDs: []int64{london, author}},
		{name: "untyped target", source: resourceRef(origin), predicate: author, target: conceptRef(untyped), wantErr: common.ErrRangeViolation, wantIDs: []int64{untyped, author}},
		{name: "source outside domain", source: conceptRef(london), predicate: author, target: conceptRef(darwin), wantErr: common.ErrDomainViolation, wantIDs: []int64{london, author}},
		{name: "value in range", source: resourceRef(origin), predicate: title, target: valueRef(text.ID)},
		{name: "value outside range", source: resourceRef(origin), predicate: title, target: valueRef(year.ID), wantErr: common.ErrRangeViolation, wantIDs: []int64{year.ID, title}},
		{name: "predicate is not a field", source: resourceRef(origin), predicate: person.ID, target: conceptRef(darwin), wantErr: common.ErrNotAField},
		{name: "reference kind mismatch", source: collectionRef(origin), predicate: author, target: conceptRef(darwin), wantErr: common.ErrKindMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := g.CreateRelation(ctx, RelationParams{Source: tt.source, PredicateID: tt.predicate, Target: tt.target})
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if id == 0 {
					t.Fatalf("expected relation id")
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if !common.IsValidation(err) {
				t.Fatalf("expected a validation error, got %v", err)
			}
			if tt.wantIDs != nil && !slices.Equal(common.OffendingIDs(err), tt.wantIDs) {
				t.Fatalf("expected offending ids %v, got %v", tt.wantIDs, common.OffendingIDs(err))
			}
		})
	}
}

func TestCreateRelation_SubtypeConstraints(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	strict := newTestClientWith(t, st, nil)
	lenient, err := NewGraphClient(NewGraphClientParams{Store: st, Namespace: testNamespace, SubtypeConstraints: true})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	thing, err := strict.EnsureType(ctx, TypeParams{URI: "https://schema.org/Thing"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	person, err := strict.EnsureType(ctx, TypeParams{URI: "https://schema.org/Person", ParentID: &thing.ID})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	newConcept := func(name string, typeID int64) int64 {
		id, err := strict.CreateEntity(ctx, &common.ConceptEntity{EntityBase: common.EntityBase{Name: name, TypeID: &typeID}})
		if err != nil {
			t.Fatalf("failed to create concept %q: %v", name, err)
		}
		return id
	}
	darwin := newConcept("Darwin", person.ID)
	beagle := newConcept("HMS Beagle", thing.ID)
	mentions := mustField(t, strict, "https://schema.org/mentions", nil, []int64{thing.ID})
	knows := mustField(t, strict, "https://schema.org/knows", nil, []int64{person.ID})

	tests := []struct {
		name      string
		g         *GraphClient
		predicate int64
		target    int64
		wantErr   error
	}{
		{name: "exact type only", g: strict, predicate: mentions, target: darwin, wantErr: common.ErrRangeViolation},
		{name: "subtype admitted", g: lenient, predicate: mentions, target: darwin},
		{name: "supertype still rejected", g: lenient, predicate: knows, target: beagle, wantErr: common.ErrRangeViolation},
		{name: "exact match", g: strict, predicate: knows, target: darwin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.g.CreateRelation(ctx, RelationParams{Source: conceptRef(beagle), PredicateID: tt.predicate, Target: conceptRef(tt.target)})
			if tt.wantErr == nil && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestQueryRelations_Pages(t *testing.T) {
	ctx := context.Background()
	g := newTestClient(t)

	about := mustField(t, g, "https://schema.org/about", nil, nil)
	doc := mustResource(t, g, &common.Resource{EntityBase: common.EntityBase{Name: "letter"}})
	var want []int64
	for range 5 {
		c := mustConcept(t, g, "topic", "")
		want = append(want, mustRelate(t, g, resourceRef(doc), about, conceptRef(c)))
	}

	src := resourceRef(doc)
	var got []int64
	for r, err := range g.QueryRelations(ctx, store.RelationQuery{Source: &src}) {
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		got = append(got, r.ID)
	}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v across pages, got %v", want, got)
	}

	limited := relationsOf(t, g, store.RelationQuery{Source: &src, Limit: 3})
	if len(limited) != 3 {
		t.Fatalf("expected 3 relations, got %d", len(limited))
	}

	count := 0
	for range g.QueryRelations(ctx, store.RelationQuery{Source: &src}) {
		count++
		if count == 1 {
			break
		}
	}
	if count != 1 {
		t.Fatalf("expected early stop, got %d", count)
	}
}

func TestQueryRelations_Unbounded(t *testing.T) {
	g := newTestClient(t)
	for _, err := range g.QueryRelations(context.Background(), store.RelationQuery{}) {
		if !errors.Is(err, common.ErrUnboundedQuery) {
			t.Fatalf("expected ErrUnboundedQuery, got %v", err)
		}
		return
	}
	t.Fatalf("expected an error to be yielded")
}

func TestSoftDeleteRelation(t *testing.T) {
	ctx := context.Background()
	g := newTestClient(t)

	about := mustField(t, g, "https://schema.org/about", nil, nil)
	doc := mustResource(t, g, &common.Resource{EntityBase: common.EntityBase{Name: "letter"}})
	c := mustConcept(t, g, "finches", "")
	id := mustRelate(t, g, resourceRef(doc), about, conceptRef(c))

	if err := g.SoftDeleteRelation(ctx, id); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	src := resourceRef(doc)
	if rels := relationsOf(t, g, store.RelationQuery{Source: &src}); len(rels) != 0 {
		t.Fatalf("expected deleted relation to be hidden, got %v", rels)
	}
	if rels := relationsOf(t, g, store.RelationQuery{Source: &src, IncludeDeleted: true}); len(rels) != 1 {
		t.Fatalf("expected deleted relation with IncludeDeleted, got %v", rels)
	}
}

func TestCreateContentRelation_RequiresContentResource(t *testing.T) {
	ctx := context.Background()
	g := newTestClient(t)

	doc := mustResource(t, g, &common.Resource{EntityBase: common.EntityBase{Name: "letter"}})
	other := mustResource(t, g, &common.Resource{EntityBase: common.EntityBase{Name: "envelope"}})
	_, err := g.CreateContentRelation(ctx, ContentRelationParams{ForResource: doc, ContentResource: other})
	if !errors.Is(err, common.ErrKindMismatch) {
		t.Fatalf("expected ErrKindMismatch, got %v", err)
	}

	content := mustContent(t, g, doc, "letter.pdf", "application/pdf")
	if content == 0 {
		t.Fatalf("expected content resource id")
	}
}
