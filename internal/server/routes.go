package server

import (
	"github.com/OFFIS-RIT/amphora/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/amphora/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Entity routes
	apiRoutes.POST("/entities", routes.CreateEntityHandler, middleware.RequirePermission("entity.create"))
	apiRoutes.GET("/entities/:id", routes.GetEntityHandler)
	apiRoutes.DELETE("/entities/:id", routes.DeleteEntityHandler, middleware.RequirePermission("entity.delete"))
	apiRoutes.POST("/entities/:id/prune", routes.PruneEntityHandler, middleware.RequirePermission("entity.prune"))

	// Relation routes
	apiRoutes.POST("/relations", routes.CreateRelationHandler, middleware.RequirePermission("relation.create"))
	apiRoutes.GET("/relations", routes.QueryRelationsHandler)
	apiRoutes.DELETE("/relations/:id", routes.DeleteRelationHandler, middleware.RequirePermission("relation.delete"))

	// Identity routes
	apiRoutes.POST("/concepts/merge", routes.MergeConceptsHandler, middleware.RequirePermission("entity.merge"))
	apiRoutes.POST("/concepts/:id/isolate", routes.IsolateConceptHandler, middleware.RequirePermission("entity.isolate"))
	apiRoutes.GET("/concepts/:id/identity", routes.GetIdentityHandler)
	apiRoutes.POST("/resources/merge", routes.MergeResourcesHandler, middleware.RequirePermission("entity.merge"))

	// Content routes
	apiRoutes.GET("/resources/:id/contents", routes.GetResourceContentsHandler)
	apiRoutes.POST("/exports", routes.CreateExportHandler, middleware.RequirePermission("export.create"))
	apiRoutes.GET("/exports/:id", routes.GetExportLinkHandler, middleware.RequireAnyPermission("export.create", "export.view"))
}
