package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store"
)

func TestMergeResources_RepointsEverything(t *testing.T) {
	ctx := context.Background()
	g := newTestClient(t)

	about := mustField(t, g, "https://schema.org/about", nil, nil)
	containerA, _ := g.CreateContainer(ctx, &common.Container{CreatedBy: "import-a"})
	containerB, _ := g.CreateContainer(ctx, &common.Container{CreatedBy: "import-b"})

	master := mustResource(t, g, &common.Resource{EntityBase: common.EntityBase{Name: "scan", ContainerID: &containerA}})
	dupe := mustResource(t, g, &common.Resource{EntityBase: common.EntityBase{Name: "scan copy", ContainerID: &containerB}})
	sibling := mustResource(t, g, &common.Resource{EntityBase: common.EntityBase{Name: "sibling", ContainerID: &containerB}})
	topic := mustConcept(t, g, "barnacles", "")
	mustRelate(t, g, resourceRef(master), about, conceptRef(topic))
	mustRelate(t, g, resourceRef(dupe), about, conceptRef(topic))
	mustContent(t, g, dupe, "scan.tiff", "image/tiff")

	res, err := g.MergeResources(ctx, MergeResourcesParams{IDs: []int64{dupe, master}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Master != master {
		t.Fatalf("expected master %d, got %d", master, res.Master)
	}
	if res.PrunedRelations != 1 {
		t.Fatalf("expected the repeated about relation to be pruned, got %d", res.PrunedRelations)
	}
	if res.DeletedDuplicates != 1 {
		t.Fatalf("expected one deleted duplicate, got %d", res.DeletedDuplicates)
	}

	if _, err := g.Get(ctx, dupe); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected duplicate to be gone, got %v", err)
	}
	src := resourceRef(master)
	if rels := relationsOf(t, g, store.RelationQuery{Source: &src}); len(rels) != 1 {
		t.Fatalf("expected one relation on master, got %d", len(rels))
	}

	var contents []int64
	for r, err := range g.AggregateContent(ctx, []int64{master}, AggregateOptions{}) {
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		contents = append(contents, r.ID)
	}
	if len(contents) != 1 {
		t.Fatalf("expected content to move to master, got %v", contents)
	}

	s, _ := g.Get(ctx, sibling)
	if got := s.Base().ContainerID; got == nil || *got != containerA {
		t.Fatalf("expected sibling to move to container %d, got %v", containerA, got)
	}
}

func TestMergeResources_RepointsReferences(t *testing.T) {
	ctx := context.Background()
	g := newTestClient(t)

	master := mustResource(t, g, &common.Resource{EntityBase: common.EntityBase{Name: "letter"}})
	dupe := mustResource(t, g, &common.Resource{EntityBase: common.EntityBase{Name: "letter scan"}})
	container, err := g.CreateContainer(ctx, &common.Container{PrimaryID: &dupe, CreatedBy: "import"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	part, err := g.CreateEntity(ctx, &common.Collection{EntityBase: common.EntityBase{Name: "attachments"}, PartOfID: &dupe})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	res, err := g.MergeResources(ctx, MergeResourcesParams{IDs: []int64{master, dupe}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.References != 2 {
		t.Fatalf("expected 2 repointed references, got %d", res.References)
	}

	var c *common.Container
	err = g.read(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err = tx.GetContainer(ctx, container)
		return err
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.PrimaryID == nil || *c.PrimaryID != master {
		t.Fatalf("expected container primary %d, got %v", master, c.PrimaryID)
	}

	e, err := g.Get(ctx, part)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	col, ok := e.(*common.Collection)
	if !ok {
		t.Fatalf("expected collection, got %T", e)
	}
	if col.PartOfID == nil || *col.PartOfID != master {
		t.Fatalf("expected collection parent %d, got %v", master, col.PartOfID)
	}
}

func TestMergeResources_Heterogeneous(t *testing.T) {
	ctx := context.Background()
	g := newTestClient(t)

	doc := mustResource(t, g, &common.Resource{EntityBase: common.EntityBase{Name: "letter"}})
	file := mustResource(t, g, &common.Resource{EntityBase: common.EntityBase{Name: "letter.pdf"}, ContentResource: true})

	_, err := g.MergeResources(ctx, MergeResourcesParams{IDs: []int64{doc, file}})
	if !errors.Is(err, common.ErrHeterogeneousMerge) {
		t.Fatalf("expected ErrHeterogeneousMerge, got %v", err)
	}
	if _, err := g.Get(ctx, file); err != nil {
		t.Fatalf("expected nothing to change, got %v", err)
	}
}

func TestMergeResources_Keep(t *testing.T) {
	ctx := context.Background()
	g := newTestClient(t)

	a := mustResource(t, g, &common.Resource{EntityBase: common.EntityBase{Name: "a"}})
	b := mustResource(t, g, &common.Resource{EntityBase: common.EntityBase{Name: "b"}})

	res, err := g.MergeResources(ctx, MergeResourcesParams{IDs: []int64{a, b}, PreferredMaster: &b, Keep: true})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Master != b || res.DeletedDuplicates != 0 {
		t.Fatalf("expected master %d and no deletions, got %+v", b, res)
	}
	if _, err := g.Get(ctx, a); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected kept duplicate to be hidden, got %v", err)
	}
	n, _ := g.CountEntities(ctx)
	if n != 2 {
		t.Fatalf("expected both rows to remain, got %d", n)
	}
}
