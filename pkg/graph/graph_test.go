package graph

import (
	"context"
	"testing"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store/memory"
)

const testNamespace = "https://amphora.test"

func newTestClient(t *testing.T) *GraphClient {
	t.Helper()
	return newTestClientWith(t, memory.New(), nil)
}

func newTestClientWith(t *testing.T, st store.GraphStore, payloads PayloadSource) *GraphClient {
	t.Helper()
	g, err := NewGraphClient(NewGraphClientParams{
		Store:     st,
		Payloads:  payloads,
		Namespace: testNamespace,
		PageSize:  2,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return g
}

func mustConcept(t *testing.T, g *GraphClient, name, conceptURI string) int64 {
	t.Helper()
	id, err := g.CreateEntity(context.Background(), &common.ConceptEntity{
		EntityBase: common.EntityBase{Name: name},
		ConceptURI: conceptURI,
	})
	if err != nil {
		t.Fatalf("failed to create concept %q: %v", name, err)
	}
	return id
}

func mustResource(t *testing.T, g *GraphClient, r *common.Resource) int64 {
	t.Helper()
	id, err := g.CreateEntity(context.Background(), r)
	if err != nil {
		t.Fatalf("failed to create resource %q: %v", r.Name, err)
	}
	return id
}

func mustCollection(t *testing.T, g *GraphClient, name string) int64 {
	t.Helper()
	id, err := g.CreateEntity(context.Background(), &common.Collection{EntityBase: common.EntityBase{Name: name}})
	if err != nil {
		t.Fatalf("failed to create collection %q: %v", name, err)
	}
	return id
}

func mustField(t *testing.T, g *GraphClient, uri string, domain, rng []int64) int64 {
	t.Helper()
	f, err := g.EnsureField(context.Background(), TypeParams{URI: uri, Name: uri, Domain: domain, Range: rng})
	if err != nil {
		t.Fatalf("failed to create field %s: %v", uri, err)
	}
	return f.ID
}

func mustRelate(t *testing.T, g *GraphClient, source common.Ref, predicate int64, target common.Ref) int64 {
	t.Helper()
	id, err := g.CreateRelation(context.Background(), RelationParams{Source: source, PredicateID: predicate, Target: target})
	if err != nil {
		t.Fatalf("failed to relate %s -> %s: %v", source, target, err)
	}
	return id
}

func mustContent(t *testing.T, g *GraphClient, forResource int64, name, contentType string) int64 {
	t.Helper()
	content := mustResource(t, g, &common.Resource{
		EntityBase:      common.EntityBase{Name: name},
		ContentResource: true,
		FileKey:         "files/" + name,
		ContentType:     contentType,
	})
	if _, err := g.CreateContentRelation(context.Background(), ContentRelationParams{
		ForResource:     forResource,
		ContentResource: content,
	}); err != nil {
		t.Fatalf("failed to link content %q: %v", name, err)
	}
	return content
}

func conceptRef(id int64) common.Ref {
	return common.Ref{Kind: common.KindConcept, ID: id}
}

func resourceRef(id int64) common.Ref {
	return common.Ref{Kind: common.KindResource, ID: id}
}

func collectionRef(id int64) common.Ref {
	return common.Ref{Kind: common.KindCollection, ID: id}
}

func valueRef(id int64) common.Ref {
	return common.Ref{Kind: common.KindValue, ID: id}
}

func relationsOf(t *testing.T, g *GraphClient, q store.RelationQuery) []common.Relation {
	t.Helper()
	rels, err := g.ListRelations(context.Background(), q)
	if err != nil {
		t.Fatalf("failed to list relations: %v", err)
	}
	return rels
}

func TestNewGraphClient_Defaults(t *testing.T) {
	if _, err := NewGraphClient(NewGraphClientParams{}); err == nil {
		t.Fatalf("expected error for missing store")
	}

	g, err := NewGraphClient(NewGraphClientParams{Store: memory.New(), Namespace: "https://x.test/"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if g.namespace != "https://x.test" {
		t.Fatalf("expected trailing slash trimmed, got %q", g.namespace)
	}
	if g.lockRetries != defaultLockRetries || g.pageSize != defaultPageSize {
		t.Fatalf("expected defaults, got retries=%d page=%d", g.lockRetries, g.pageSize)
	}
}
