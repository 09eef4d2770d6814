package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/amphora/backend/internal/queue"
	"github.com/OFFIS-RIT/amphora/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/graph"

	"github.com/labstack/echo/v4"
)

func MergeResourcesHandler(c echo.Context) error {
	type mergeResourcesData struct {
		IDs             []int64 `json:"ids" validate:"required,min=2"`
		PreferredMaster *int64  `json:"preferred_master"`
		Keep            bool    `json:"keep"`
		Async           bool    `json:"async"`
	}

	type mergeResourcesResponse struct {
		Message       string                      `json:"message"`
		Result        *graph.MergeResourcesResult `json:"result,omitempty"`
		CorrelationID string                      `json:"correlation_id,omitempty"`
	}

	data := new(mergeResourcesData)
	if err := c.Bind(data); err != nil {
		return invalidParams(c)
	}
	if err := c.Validate(data); err != nil {
		return invalidParams(c)
	}

	app := c.(*middleware.AppContext).App

	if data.Async {
		id, err := enqueue(app, queue.MergeResourcesQueue, func(correlationID string) any {
			return queue.MergeResourcesJobMsg{
				CorrelationID:   correlationID,
				IDs:             data.IDs,
				PreferredMaster: data.PreferredMaster,
				Keep:            data.Keep,
			}
		})
		if err != nil {
			return queueError(c, err)
		}
		return c.JSON(http.StatusAccepted, mergeResourcesResponse{Message: "Merge queued", CorrelationID: id})
	}

	res, err := app.Graph.MergeResources(c.Request().Context(), graph.MergeResourcesParams{
		IDs:             data.IDs,
		PreferredMaster: data.PreferredMaster,
		Keep:            data.Keep,
	})
	if err != nil {
		return graphError(c, err)
	}

	return c.JSON(http.StatusOK, mergeResourcesResponse{Message: "Resources merged", Result: res})
}

// GetResourceContentsHandler lists the content resources reachable from a
// resource or collection over is-part-of relations.
func GetResourceContentsHandler(c echo.Context) error {
	type contentsData struct {
		ID          int64  `param:"id" validate:"required"`
		ContentType string `query:"content_type"`
	}

	type contentsResponse struct {
		Message  string             `json:"message"`
		Contents []*common.Resource `json:"contents"`
	}

	data := new(contentsData)
	if err := c.Bind(data); err != nil {
		return invalidParams(c)
	}
	if err := c.Validate(data); err != nil {
		return invalidParams(c)
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()
	if _, err := app.Graph.Get(ctx, data.ID); err != nil {
		return graphError(c, err)
	}

	contents := []*common.Resource{}
	for r, err := range app.Graph.AggregateContent(ctx, []int64{data.ID}, graph.AggregateOptions{ContentType: data.ContentType}) {
		if err != nil {
			return graphError(c, err)
		}
		contents = append(contents, r)
	}

	return c.JSON(http.StatusOK, contentsResponse{Message: "OK", Contents: contents})
}
