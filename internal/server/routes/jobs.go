package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/amphora/backend/internal/queue"
	"github.com/OFFIS-RIT/amphora/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/amphora/backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// enqueue publishes the message built for a fresh correlation id and
// returns that id.
func enqueue(app *middleware.App, queueName string, build func(correlationID string) any) (string, error) {
	if app.Queue == nil {
		return "", errors.New("no job queue configured")
	}
	correlationID := uuid.NewString()
	data, err := json.Marshal(build(correlationID))
	if err != nil {
		return "", err
	}
	if err := queue.PublishFIFO(app.Queue, queueName, data); err != nil {
		return "", err
	}
	logger.Info("[Server] Job queued", "queue", queueName, "correlation_id", correlationID)
	return correlationID, nil
}

func queueError(c echo.Context, err error) error {
	logger.Error("[Server] Failed to queue job", "path", c.Path(), "err", err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Message: "Failed to queue job"})
}
