package graph

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/logger"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store"
)

// MergeParams configures a concept merge. PreferredMaster is used as the
// representative when it is part of IDs; otherwise an entity that already
// represents an earlier merge wins, then the lowest id.
type MergeParams struct {
	IDs             []int64
	PreferredMaster *int64
	AddedBy         string
}

// Merge records that the given concept entities denote the same thing and
// returns the representative. No entity is removed; an Identity row is added
// and earlier identities represented by a merged entity are moved to the new
// representative.
func (g *GraphClient) Merge(ctx context.Context, params MergeParams) (int64, error) {
	var master int64
	err := g.update(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		master, err = mergeConcepts(ctx, tx, params)
		return err
	})
	if err != nil {
		return 0, err
	}
	logger.Info("[Merge] Merged concepts", "ids", params.IDs, "master", master)
	return master, nil
}

func mergeConcepts(ctx context.Context, tx store.Tx, params MergeParams) (int64, error) {
	ids := common.SortedIDs(params.IDs)
	if len(ids) < 2 {
		return 0, common.NewValidationError(common.ErrInsufficientEntities, "", ids...)
	}

	// An input that is a member of an earlier identity brings that identity's
	// representative into the merge, so the cluster keeps a single one.
	outer := make(map[int64]struct{})
	for _, id := range ids {
		rep, err := representativeOf(ctx, tx, id)
		if err != nil {
			return 0, err
		}
		if !slices.Contains(ids, rep) {
			outer[rep] = struct{}{}
		}
	}
	candidates := slices.Clone(ids)
	for rep := range outer {
		candidates = append(candidates, rep)
	}
	candidates = common.SortedIDs(candidates)

	if err := tx.LockEntities(ctx, candidates); err != nil {
		return 0, err
	}
	entities, err := tx.GetEntities(ctx, candidates, true)
	if err != nil {
		return 0, err
	}
	if err := requireAll(candidates, entities); err != nil {
		return 0, err
	}

	concepts := make(map[int64]*common.ConceptEntity, len(entities))
	for _, e := range entities {
		c, ok := e.(*common.ConceptEntity)
		if !ok {
			return 0, common.NewValidationError(common.ErrKindMismatch, "only concept entities can be merged", e.Base().ID)
		}
		concepts[c.ID] = c
	}

	conceptURI, err := sharedConceptURI(candidates, concepts)
	if err != nil {
		return 0, err
	}

	represented, err := tx.ListIdentitiesByRepresentative(ctx, candidates)
	if err != nil {
		return 0, err
	}
	reps := make(map[int64]struct{}, len(represented)+len(outer))
	for _, i := range represented {
		reps[i.Representative] = struct{}{}
	}
	for rep := range outer {
		reps[rep] = struct{}{}
	}
	var master int64
	if p := params.PreferredMaster; p != nil && slices.Contains(ids, *p) {
		master = *p
	} else {
		master = selectMaster(candidates, reps)
	}

	if m := concepts[master]; conceptURI != "" && m.ConceptURI != conceptURI {
		m.ConceptURI = conceptURI
		if err := tx.UpdateEntity(ctx, m); err != nil {
			return 0, err
		}
	}

	if _, err := tx.InsertIdentity(ctx, &common.Identity{
		Representative: master,
		Entities:       ids,
		AddedBy:        params.AddedBy,
	}); err != nil {
		return 0, err
	}

	others := slices.DeleteFunc(candidates, func(id int64) bool { return id == master })
	if _, err := tx.ReassignRepresentative(ctx, others, master); err != nil {
		return 0, err
	}
	return master, nil
}

// sharedConceptURI returns the single external concept the entities link to,
// or "" if none does.
func sharedConceptURI(ids []int64, concepts map[int64]*common.ConceptEntity) (string, error) {
	var uri string
	var linked []int64
	var uris []string
	for _, id := range ids {
		c := concepts[id]
		if c.ConceptURI == "" {
			continue
		}
		linked = append(linked, id)
		if !slices.Contains(uris, c.ConceptURI) {
			uris = append(uris, c.ConceptURI)
		}
		uri = c.ConceptURI
	}
	if len(uris) > 1 {
		return "", common.NewValidationError(common.ErrConflictingExternalConcepts, strings.Join(uris, ", "), linked...)
	}
	return uri, nil
}

// selectMaster picks the first of the sorted ids that already represents an
// identity, or the lowest id.
func selectMaster(ids []int64, reps map[int64]struct{}) int64 {
	for _, id := range ids {
		if _, ok := reps[id]; ok {
			return id
		}
	}
	return ids[0]
}

// requireAll fails with ErrNotFound naming the first id that has no row.
func requireAll(ids []int64, entities []common.Entity) error {
	if len(entities) == len(ids) {
		return nil
	}
	found := make(map[int64]struct{}, len(entities))
	for _, e := range entities {
		found[e.Base().ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return common.NotFound("entity", id)
		}
	}
	return nil
}

// CurrentRepresentative returns the representative of the most recent
// identity that involves id, or id itself when it was never merged.
func (g *GraphClient) CurrentRepresentative(ctx context.Context, id int64) (int64, error) {
	var rep int64
	err := g.read(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		rep, err = currentRepresentative(ctx, tx, id)
		return err
	})
	return rep, err
}

func currentRepresentative(ctx context.Context, tx store.Tx, id int64) (int64, error) {
	if _, err := resolveRef(ctx, tx, common.Ref{Kind: common.KindConcept, ID: id}, true); err != nil {
		return 0, err
	}
	return representativeOf(ctx, tx, id)
}

// representativeOf returns the representative of the latest identity that
// names id, or id itself.
func representativeOf(ctx context.Context, tx store.Tx, id int64) (int64, error) {
	identities, err := tx.ListIdentities(ctx, id)
	if err != nil {
		return 0, err
	}
	if len(identities) == 0 {
		return id, nil
	}
	return identities[len(identities)-1].Representative, nil
}

// Cluster is the set of concept entities known to denote the same thing.
type Cluster struct {
	Representative int64   `json:"representative"`
	Members        []int64 `json:"members"`
}

// IdentityCluster returns the representative of id together with every
// entity merged under it.
func (g *GraphClient) IdentityCluster(ctx context.Context, id int64) (*Cluster, error) {
	var c *Cluster
	err := g.read(ctx, func(ctx context.Context, tx store.Tx) error {
		rep, err := currentRepresentative(ctx, tx, id)
		if err != nil {
			return err
		}
		identities, err := tx.ListIdentitiesByRepresentative(ctx, []int64{rep})
		if err != nil {
			return err
		}
		members := []int64{rep, id}
		for _, i := range identities {
			members = append(members, i.Entities...)
		}
		c = &Cluster{Representative: rep, Members: common.SortedIDs(members)}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve identity of %d: %w", id, err)
	}
	return c, nil
}
