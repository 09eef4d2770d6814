package routes

import (
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Message string  `json:"message"`
	Error   string  `json:"error,omitempty"`
	IDs     []int64 `json:"ids,omitempty"`
}

// statusOf maps graph errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrLockConflict),
		errors.Is(err, common.ErrConflictingExternalConcepts),
		errors.Is(err, common.ErrHeterogeneousMerge):
		return http.StatusConflict
	case common.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func graphError(c echo.Context, err error) error {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.Error("[Server] Request failed", "path", c.Path(), "err", err)
		return c.JSON(status, errorResponse{Message: "Internal server error"})
	}
	return c.JSON(status, errorResponse{
		Message: http.StatusText(status),
		Error:   err.Error(),
		IDs:     common.OffendingIDs(err),
	})
}

func invalidParams(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Message: "Invalid request params"})
}
