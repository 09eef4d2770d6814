package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/amphora/backend/internal/queue"
	"github.com/OFFIS-RIT/amphora/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/amphora/backend/pkg/graph"

	"github.com/labstack/echo/v4"
)

// MergeConceptsHandler records that the given concepts are the same thing.
// With async set the merge is handed to the worker instead.
func MergeConceptsHandler(c echo.Context) error {
	type mergeData struct {
		IDs             []int64 `json:"ids" validate:"required,min=2"`
		PreferredMaster *int64  `json:"preferred_master"`
		Async           bool    `json:"async"`
	}

	type mergeResponse struct {
		Message        string `json:"message"`
		Representative int64  `json:"representative,omitempty"`
		CorrelationID  string `json:"correlation_id,omitempty"`
	}

	data := new(mergeData)
	if err := c.Bind(data); err != nil {
		return invalidParams(c)
	}
	if err := c.Validate(data); err != nil {
		return invalidParams(c)
	}

	app := c.(*middleware.AppContext).App
	user := c.(*middleware.AppContext).User

	if data.Async {
		id, err := enqueue(app, queue.MergeQueue, func(correlationID string) any {
			return queue.MergeJobMsg{
				CorrelationID:   correlationID,
				IDs:             data.IDs,
				PreferredMaster: data.PreferredMaster,
				AddedBy:         user.UserID,
			}
		})
		if err != nil {
			return queueError(c, err)
		}
		return c.JSON(http.StatusAccepted, mergeResponse{Message: "Merge queued", CorrelationID: id})
	}

	master, err := app.Graph.Merge(c.Request().Context(), graph.MergeParams{
		IDs:             data.IDs,
		PreferredMaster: data.PreferredMaster,
		AddedBy:         user.UserID,
	})
	if err != nil {
		return graphError(c, err)
	}

	return c.JSON(http.StatusOK, mergeResponse{Message: "Concepts merged", Representative: master})
}

func IsolateConceptHandler(c echo.Context) error {
	type isolateData struct {
		ID    int64 `param:"id" validate:"required"`
		Async bool  `json:"async"`
	}

	type isolateResponse struct {
		Message       string               `json:"message"`
		Result        *graph.IsolateResult `json:"result,omitempty"`
		CorrelationID string               `json:"correlation_id,omitempty"`
	}

	data := new(isolateData)
	if err := c.Bind(data); err != nil {
		return invalidParams(c)
	}
	if err := c.Validate(data); err != nil {
		return invalidParams(c)
	}

	app := c.(*middleware.AppContext).App
	user := c.(*middleware.AppContext).User

	if data.Async {
		id, err := enqueue(app, queue.IsolateQueue, func(correlationID string) any {
			return queue.IsolateJobMsg{CorrelationID: correlationID, ID: data.ID, AddedBy: user.UserID}
		})
		if err != nil {
			return queueError(c, err)
		}
		return c.JSON(http.StatusAccepted, isolateResponse{Message: "Isolation queued", CorrelationID: id})
	}

	res, err := app.Graph.Isolate(c.Request().Context(), data.ID, user.UserID)
	if err != nil {
		return graphError(c, err)
	}

	return c.JSON(http.StatusOK, isolateResponse{Message: "Concept isolated", Result: res})
}

// GetIdentityHandler returns the identity cluster a concept belongs to.
func GetIdentityHandler(c echo.Context) error {
	type identityData struct {
		ID int64 `param:"id" validate:"required"`
	}

	type identityResponse struct {
		Message string         `json:"message"`
		Cluster *graph.Cluster `json:"cluster,omitempty"`
	}

	data := new(identityData)
	if err := c.Bind(data); err != nil {
		return invalidParams(c)
	}
	if err := c.Validate(data); err != nil {
		return invalidParams(c)
	}

	app := c.(*middleware.AppContext).App
	cluster, err := app.Graph.IdentityCluster(c.Request().Context(), data.ID)
	if err != nil {
		return graphError(c, err)
	}

	return c.JSON(http.StatusOK, identityResponse{Message: "OK", Cluster: cluster})
}
