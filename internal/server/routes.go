package server

import (
	"github.com/OFFIS-RIT/threadgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/threadgraph/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	apiRoutes.GET("/progress", routes.GetProgressHandler, middleware.RequirePermission(middleware.PermProgressView))
	apiRoutes.GET("/graphs/:name", routes.GetGraphHandler, middleware.RequirePermission(middleware.PermGraphView))
	apiRoutes.POST("/runs", routes.StartRunHandler, middleware.RequirePermission(middleware.PermPipelineRun))
}
