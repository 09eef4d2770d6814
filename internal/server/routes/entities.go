package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/amphora/backend/internal/queue"
	"github.com/OFFIS-RIT/amphora/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/value"

	"github.com/labstack/echo/v4"
)

type entityResponse struct {
	Message string        `json:"message"`
	Entity  common.Entity `json:"entity,omitempty"`
}

// CreateEntityHandler creates an entity of any kind. Values are given as a
// value type and a payload, which is stored in canonical form.
func CreateEntityHandler(c echo.Context) error {
	type createEntityData struct {
		Kind        string `json:"kind" validate:"required,oneof=resource collection concept value"`
		Name        string `json:"name"`
		URI         string `json:"uri"`
		Namespace   string `json:"namespace"`
		TypeID      *int64 `json:"type_id"`
		ContainerID *int64 `json:"container_id"`

		ContentResource bool   `json:"content_resource"`
		External        bool   `json:"external"`
		ExternalSource  string `json:"external_source"`
		Location        string `json:"location"`
		FileKey         string `json:"file_key"`
		ContentType     string `json:"content_type"`

		Description string `json:"description"`
		PartOfID    *int64 `json:"part_of_id"`

		ConceptURI string `json:"concept_uri"`

		ValueType string `json:"value_type"`
		Payload   string `json:"payload"`
	}

	data := new(createEntityData)
	if err := c.Bind(data); err != nil {
		return invalidParams(c)
	}
	if err := c.Validate(data); err != nil {
		return invalidParams(c)
	}

	app := c.(*middleware.AppContext).App
	user := c.(*middleware.AppContext).User

	base := common.EntityBase{
		Name:        data.Name,
		URI:         data.URI,
		Namespace:   data.Namespace,
		TypeID:      data.TypeID,
		ContainerID: data.ContainerID,
		CreatedBy:   user.UserID,
	}

	var e common.Entity
	switch common.Kind(data.Kind) {
	case common.KindResource:
		e = &common.Resource{
			EntityBase:      base,
			ContentResource: data.ContentResource,
			External:        data.External,
			ExternalSource:  data.ExternalSource,
			Location:        data.Location,
			FileKey:         data.FileKey,
			ContentType:     data.ContentType,
		}
	case common.KindCollection:
		e = &common.Collection{EntityBase: base, Description: data.Description, PartOfID: data.PartOfID}
	case common.KindConcept:
		e = &common.ConceptEntity{EntityBase: base, ConceptURI: data.ConceptURI}
	case common.KindValue:
		vt := value.Type(data.ValueType)
		if !vt.Valid() {
			return c.JSON(http.StatusBadRequest, errorResponse{Message: "Invalid value type"})
		}
		if _, err := value.Canonicalize(vt, data.Payload); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Message: "Invalid value payload", Error: err.Error()})
		}
		e = &common.Value{EntityBase: base, ValueType: vt, Payload: data.Payload}
	}

	ctx := c.Request().Context()
	if _, err := app.Graph.CreateEntity(ctx, e); err != nil {
		return graphError(c, err)
	}

	return c.JSON(http.StatusCreated, entityResponse{
		Message: "Entity created successfully",
		Entity:  e,
	})
}

func GetEntityHandler(c echo.Context) error {
	type getEntityData struct {
		ID int64 `param:"id" validate:"required"`
	}

	data := new(getEntityData)
	if err := c.Bind(data); err != nil {
		return invalidParams(c)
	}
	if err := c.Validate(data); err != nil {
		return invalidParams(c)
	}

	app := c.(*middleware.AppContext).App
	e, err := app.Graph.Get(c.Request().Context(), data.ID)
	if err != nil {
		return graphError(c, err)
	}

	return c.JSON(http.StatusOK, entityResponse{Message: "OK", Entity: e})
}

func DeleteEntityHandler(c echo.Context) error {
	type deleteEntityData struct {
		ID int64 `param:"id" validate:"required"`
	}

	data := new(deleteEntityData)
	if err := c.Bind(data); err != nil {
		return invalidParams(c)
	}
	if err := c.Validate(data); err != nil {
		return invalidParams(c)
	}

	app := c.(*middleware.AppContext).App
	if err := app.Graph.SoftDelete(c.Request().Context(), data.ID); err != nil {
		return graphError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Entity deleted successfully"})
}

// PruneEntityHandler removes duplicate relations of an entity.
func PruneEntityHandler(c echo.Context) error {
	type pruneData struct {
		ID    int64 `param:"id" validate:"required"`
		Async bool  `json:"async"`
	}

	type pruneResponse struct {
		Message       string `json:"message"`
		Deleted       int    `json:"deleted"`
		CorrelationID string `json:"correlation_id,omitempty"`
	}

	data := new(pruneData)
	if err := c.Bind(data); err != nil {
		return invalidParams(c)
	}
	if err := c.Validate(data); err != nil {
		return invalidParams(c)
	}

	app := c.(*middleware.AppContext).App
	if data.Async {
		id, err := enqueue(app, queue.PruneQueue, func(correlationID string) any {
			return queue.PruneJobMsg{CorrelationID: correlationID, ID: data.ID}
		})
		if err != nil {
			return queueError(c, err)
		}
		return c.JSON(http.StatusAccepted, pruneResponse{Message: "Prune queued", CorrelationID: id})
	}

	deleted, err := app.Graph.Prune(c.Request().Context(), data.ID)
	if err != nil {
		return graphError(c, err)
	}

	return c.JSON(http.StatusOK, pruneResponse{Message: "Entity pruned", Deleted: deleted})
}
