package middleware

import (
	"github.com/OFFIS-RIT/amphora/backend/internal/queue"
	"github.com/OFFIS-RIT/amphora/backend/pkg/graph"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type AppUser struct {
	UserID      string
	Role        string
	Permissions []string
}

type App struct {
	Graph *graph.GraphClient
	Queue queue.Publisher
	// Keyfunc verifies bearer tokens; nil disables JWT auth.
	Keyfunc jwt.Keyfunc

	S3             *s3.Client
	ExportBucket   string
	ExportPrefix   string
	PublicEndpoint string

	MasterAPIKey   string
	MasterUserID   string
	MasterUserRole string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
