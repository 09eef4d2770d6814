package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/amphora/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/graph"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store"

	"github.com/labstack/echo/v4"
)

const (
	defaultRelationLimit = 100
	maxRelationLimit     = 1000
)

func CreateRelationHandler(c echo.Context) error {
	type createRelationData struct {
		Source      common.Ref `json:"source" validate:"required"`
		PredicateID int64      `json:"predicate_id" validate:"required"`
		Target      common.Ref `json:"target" validate:"required"`
		DataSource  string     `json:"data_source"`
		ContainerID *int64     `json:"container_id"`
	}

	type createRelationResponse struct {
		Message  string           `json:"message"`
		Relation *common.Relation `json:"relation,omitempty"`
	}

	data := new(createRelationData)
	if err := c.Bind(data); err != nil {
		return invalidParams(c)
	}
	if err := c.Validate(data); err != nil {
		return invalidParams(c)
	}
	if !data.Source.Kind.Valid() || !data.Target.Kind.Valid() {
		return invalidParams(c)
	}

	app := c.(*middleware.AppContext).App
	user := c.(*middleware.AppContext).User
	ctx := c.Request().Context()

	id, err := app.Graph.CreateRelation(ctx, graph.RelationParams{
		Source:      data.Source,
		PredicateID: data.PredicateID,
		Target:      data.Target,
		DataSource:  data.DataSource,
		ContainerID: data.ContainerID,
		CreatedBy:   user.UserID,
	})
	if err != nil {
		return graphError(c, err)
	}
	rel, err := app.Graph.GetRelation(ctx, id)
	if err != nil {
		return graphError(c, err)
	}

	return c.JSON(http.StatusCreated, createRelationResponse{
		Message:  "Relation created successfully",
		Relation: rel,
	})
}

// QueryRelationsHandler lists relations page by page. NextAfterID is set when
// more relations may follow and is passed back as after_id.
func QueryRelationsHandler(c echo.Context) error {
	type queryRelationsData struct {
		SourceKind     string `query:"source_kind"`
		SourceID       int64  `query:"source_id"`
		PredicateID    int64  `query:"predicate_id"`
		TargetKind     string `query:"target_kind"`
		TargetID       int64  `query:"target_id"`
		IncludeDeleted bool   `query:"include_deleted"`
		AfterID        int64  `query:"after_id" validate:"min=0"`
		Limit          int    `query:"limit" validate:"min=0"`
	}

	type queryRelationsResponse struct {
		Message     string            `json:"message"`
		Relations   []common.Relation `json:"relations"`
		NextAfterID int64             `json:"next_after_id,omitempty"`
	}

	data := new(queryRelationsData)
	if err := c.Bind(data); err != nil {
		return invalidParams(c)
	}
	if err := c.Validate(data); err != nil {
		return invalidParams(c)
	}

	q := store.RelationQuery{
		IncludeDeleted: data.IncludeDeleted,
		AfterID:        data.AfterID,
		Limit:          data.Limit,
	}
	if q.Limit == 0 {
		q.Limit = defaultRelationLimit
	}
	q.Limit = min(q.Limit, maxRelationLimit)

	var ok bool
	if q.Source, ok = optionalRef(data.SourceKind, data.SourceID); !ok {
		return invalidParams(c)
	}
	if q.Target, ok = optionalRef(data.TargetKind, data.TargetID); !ok {
		return invalidParams(c)
	}
	if data.PredicateID != 0 {
		q.PredicateID = &data.PredicateID
	}

	app := c.(*middleware.AppContext).App
	relations := []common.Relation{}
	for rel, err := range app.Graph.QueryRelations(c.Request().Context(), q) {
		if err != nil {
			return graphError(c, err)
		}
		relations = append(relations, rel)
	}

	res := queryRelationsResponse{Message: "OK", Relations: relations}
	if len(relations) == q.Limit {
		res.NextAfterID = relations[len(relations)-1].ID
	}
	return c.JSON(http.StatusOK, res)
}

// optionalRef builds a filter ref; kind and id must be given together.
func optionalRef(kind string, id int64) (*common.Ref, bool) {
	if kind == "" && id == 0 {
		return nil, true
	}
	k, err := common.ParseKind(kind)
	if err != nil || id <= 0 {
		return nil, false
	}
	return &common.Ref{Kind: k, ID: id}, true
}

func DeleteRelationHandler(c echo.Context) error {
	type deleteRelationData struct {
		ID int64 `param:"id" validate:"required"`
	}

	data := new(deleteRelationData)
	if err := c.Bind(data); err != nil {
		return invalidParams(c)
	}
	if err := c.Validate(data); err != nil {
		return invalidParams(c)
	}

	app := c.(*middleware.AppContext).App
	if err := app.Graph.SoftDeleteRelation(c.Request().Context(), data.ID); err != nil {
		return graphError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Relation deleted successfully"})
}
