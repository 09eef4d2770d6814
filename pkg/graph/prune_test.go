package graph

import (
	"context"
	"testing"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store"
)

func TestPrune_RemovesDuplicates(t *testing.T) {
	ctx := context.Background()
	g := newTestClient(t)

	about := mustField(t, g, "https://schema.org/about", nil, nil)
	name := mustField(t, g, "https://schema.org/name", nil, nil)
	doc := mustResource(t, g, &common.Resource{EntityBase: common.EntityBase{Name: "letter"}})
	topic := mustConcept(t, g, "orchids", "")
	other := mustConcept(t, g, "worms", "")
	v1, _ := g.CreateValue(ctx, "Letter to Hooker", "")
	v2, _ := g.CreateValue(ctx, "Letter to Hooker", "")
	v3, _ := g.CreateValue(ctx, "Letter to Lyell", "")

	keep := mustRelate(t, g, resourceRef(doc), about, conceptRef(topic))
	mustRelate(t, g, resourceRef(doc), about, conceptRef(topic))
	mustRelate(t, g, resourceRef(doc), about, conceptRef(other))
	keepName := mustRelate(t, g, resourceRef(doc), name, valueRef(v1.ID))
	mustRelate(t, g, resourceRef(doc), name, valueRef(v2.ID))
	mustRelate(t, g, resourceRef(doc), name, valueRef(v3.ID))
	parent := mustCollection(t, g, "correspondence")
	hasPart := mustField(t, g, "https://schema.org/hasPart", nil, nil)
	mustRelate(t, g, collectionRef(parent), hasPart, resourceRef(doc))
	mustRelate(t, g, collectionRef(parent), hasPart, resourceRef(doc))

	n, err := g.Prune(ctx, doc)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 deleted relations, got %d", n)
	}

	src := resourceRef(doc)
	rels := relationsOf(t, g, store.RelationQuery{Source: &src})
	if len(rels) != 4 {
		t.Fatalf("expected 4 remaining outgoing relations, got %d", len(rels))
	}
	if rels[0].ID != keep {
		t.Fatalf("expected lowest id %d to survive, got %d", keep, rels[0].ID)
	}
	kept := false
	for _, r := range rels {
		if r.ID == keepName {
			kept = true
		}
	}
	if !kept {
		t.Fatalf("expected first name relation %d to survive", keepName)
	}

	dst := resourceRef(doc)
	if in := relationsOf(t, g, store.RelationQuery{Target: &dst}); len(in) != 1 {
		t.Fatalf("expected one incoming relation, got %d", len(in))
	}

	again, err := g.Prune(ctx, doc)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if again != 0 {
		t.Fatalf("expected second prune to delete nothing, got %d", again)
	}
}

func TestDuplicateRelations(t *testing.T) {
	target := func(r common.Relation) common.Ref { return r.Target }
	values := map[int64]string{10: "text\x00a", 11: "text\x00a", 12: "int\x00a"}
	rels := []common.Relation{
		{ID: 1, PredicateID: 1, Target: valueRef(10)},
		{ID: 2, PredicateID: 1, Target: valueRef(11)},
		{ID: 3, PredicateID: 1, Target: valueRef(12)},
		{ID: 4, PredicateID: 2, Target: valueRef(11)},
		{ID: 5, PredicateID: 1, Target: conceptRef(10)},
		{ID: 6, PredicateID: 1, Target: resourceRef(10)},
		{ID: 7, PredicateID: 1, Target: conceptRef(10)},
	}
	got := duplicateRelations(rels, target, values)
	if len(got) != 2 || got[0] != 2 || got[1] != 7 {
		t.Fatalf("expected [2 7], got %v", got)
	}
}
