package graph

import (
	"context"
	"fmt"
	"slices"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/logger"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store"
)

// MergeResourcesParams configures a resource merge. Unless Keep is set the
// duplicates are physically deleted once everything pointing at them has
// been moved to the master; with Keep they are only soft-deleted.
type MergeResourcesParams struct {
	IDs             []int64
	PreferredMaster *int64
	Keep            bool
}

// MergeResourcesResult reports what a resource merge changed.
type MergeResourcesResult struct {
	Master            int64 `json:"master"`
	Relations         int64 `json:"relations_repointed"`
	ContentRelations  int64 `json:"content_relations_repointed"`
	References        int64 `json:"references_repointed"`
	PrunedRelations   int   `json:"pruned_relations"`
	DeletedDuplicates int64 `json:"deleted_duplicates"`
}

// MergeResources folds duplicate resources into one master. Every relation and
// content relation naming a duplicate is rewritten to name the master, as are
// container primaries and collection parents. The duplicates' containers are
// moved into the master's container and the master's relations are pruned.
func (g *GraphClient) MergeResources(ctx context.Context, params MergeResourcesParams) (*MergeResourcesResult, error) {
	var res *MergeResourcesResult
	err := g.update(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = mergeResources(ctx, tx, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Info("[MergeResources] Merged resources", "ids", params.IDs, "master", res.Master,
		"relations", res.Relations, "content_relations", res.ContentRelations, "references", res.References, "pruned", res.PrunedRelations)
	return res, nil
}

func mergeResources(ctx context.Context, tx store.Tx, params MergeResourcesParams) (*MergeResourcesResult, error) {
	ids := common.SortedIDs(params.IDs)
	if len(ids) < 2 {
		return nil, common.NewValidationError(common.ErrInsufficientEntities, "", ids...)
	}
	if err := tx.LockEntities(ctx, ids); err != nil {
		return nil, err
	}
	entities, err := tx.GetEntities(ctx, ids, true)
	if err != nil {
		return nil, err
	}
	if err := requireAll(ids, entities); err != nil {
		return nil, err
	}

	resources := make(map[int64]*common.Resource, len(entities))
	var content, plain []int64
	for _, e := range entities {
		r, ok := e.(*common.Resource)
		if !ok {
			return nil, common.NewValidationError(common.ErrKindMismatch, "only resources can be merged as resources", e.Base().ID)
		}
		resources[r.ID] = r
		if r.ContentResource {
			content = append(content, r.ID)
		} else {
			plain = append(plain, r.ID)
		}
	}
	if len(content) > 0 && len(plain) > 0 {
		return nil, common.NewValidationError(common.ErrHeterogeneousMerge,
			fmt.Sprintf("content resources %v, other resources %v", content, plain), ids...)
	}

	masterID := ids[0]
	if params.PreferredMaster != nil && slices.Contains(ids, *params.PreferredMaster) {
		masterID = *params.PreferredMaster
	}
	master := resources[masterID]
	dupes := slices.DeleteFunc(slices.Clone(ids), func(id int64) bool { return id == masterID })

	res := &MergeResourcesResult{Master: masterID}
	if res.Relations, err = tx.RepointRelations(ctx, common.KindResource, dupes, masterID); err != nil {
		return nil, err
	}
	if res.ContentRelations, err = tx.RepointContentRelations(ctx, dupes, masterID); err != nil {
		return nil, err
	}
	if res.References, err = tx.RepointEntityReferences(ctx, dupes, masterID); err != nil {
		return nil, err
	}

	for _, id := range dupes {
		from := resources[id].ContainerID
		if from == nil {
			continue
		}
		if master.ContainerID == nil {
			master.ContainerID = common.IDPtr(*from)
			if err := tx.UpdateEntity(ctx, master); err != nil {
				return nil, err
			}
			continue
		}
		if err := tx.MoveContainer(ctx, *from, *master.ContainerID); err != nil {
			return nil, err
		}
	}

	if res.PrunedRelations, err = pruneEntity(ctx, tx, common.RefOf(master)); err != nil {
		return nil, err
	}

	if params.Keep {
		for _, id := range dupes {
			if resources[id].Deleted {
				continue
			}
			if err := tx.SoftDeleteEntity(ctx, id); err != nil {
				return nil, err
			}
		}
		return res, nil
	}
	if res.DeletedDuplicates, err = tx.DeleteEntities(ctx, dupes); err != nil {
		return nil, err
	}
	return res, nil
}
