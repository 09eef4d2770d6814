package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/amphora/backend/internal/queue"
	"github.com/OFFIS-RIT/amphora/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/amphora/backend/internal/storage"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// CreateExportHandler queues an archive export of the content reachable from
// the given roots.
func CreateExportHandler(c echo.Context) error {
	type createExportData struct {
		Roots       []int64 `json:"roots" validate:"required,min=1"`
		ContentType string  `json:"content_type"`
		Manifest    bool    `json:"manifest"`
	}

	type createExportResponse struct {
		Message       string `json:"message"`
		CorrelationID string `json:"correlation_id"`
		Key           string `json:"key"`
	}

	data := new(createExportData)
	if err := c.Bind(data); err != nil {
		return invalidParams(c)
	}
	if err := c.Validate(data); err != nil {
		return invalidParams(c)
	}

	roots := store.DedupeIDs(data.Roots)
	if len(roots) == 0 {
		return invalidParams(c)
	}

	app := c.(*middleware.AppContext).App
	id, err := enqueue(app, queue.ExportQueue, func(correlationID string) any {
		return queue.ExportJobMsg{
			CorrelationID: correlationID,
			Roots:         roots,
			ContentType:   data.ContentType,
			Manifest:      data.Manifest,
		}
	})
	if err != nil {
		return queueError(c, err)
	}

	return c.JSON(http.StatusAccepted, createExportResponse{
		Message:       "Export queued",
		CorrelationID: id,
		Key:           storage.ObjectKey(app.ExportPrefix, queue.ExportKey(id)),
	})
}

// GetExportLinkHandler returns a short-lived download link for a finished export.
func GetExportLinkHandler(c echo.Context) error {
	type exportLinkData struct {
		ID string `param:"id" validate:"required"`
	}

	data := new(exportLinkData)
	if err := c.Bind(data); err != nil {
		return invalidParams(c)
	}
	if err := c.Validate(data); err != nil {
		return invalidParams(c)
	}
	if _, err := uuid.Parse(data.ID); err != nil {
		return invalidParams(c)
	}

	app := c.(*middleware.AppContext).App
	if app.S3 == nil || app.ExportBucket == "" {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Message: "Export storage not configured"})
	}

	link, err := storage.GenerateDownloadLink(c.Request().Context(), app.S3, app.ExportBucket,
		storage.ObjectKey(app.ExportPrefix, queue.ExportKey(data.ID)), app.PublicEndpoint)
	if err != nil {
		return graphError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "OK", "url": link})
}
