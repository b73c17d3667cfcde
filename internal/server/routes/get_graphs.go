package routes

import (
	"errors"
	"net/http"
	"os"

	"github.com/OFFIS-RIT/threadgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/threadgraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

func GetGraphHandler(c echo.Context) error {
	type getGraphParams struct {
		Name string `param:"name" validate:"required"`
	}

	params := new(getGraphParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	if !hasVariant(app, params.Name) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Unknown graph variant"})
	}

	g, err := app.Graphs.LoadVariant(c.Request().Context(), params.Name)
	if errors.Is(err, os.ErrNotExist) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Graph has not been built yet"})
	}
	if err != nil {
		logger.Error("Failed to load graph", "variant", params.Name, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load graph"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"variant": params.Name,
		"nodes":   g.Nodes,
		"edges":   g.EdgeList(),
	})
}

func hasVariant(app *middleware.App, name string) bool {
	if app.Config == nil {
		return false
	}
	for _, v := range app.Config.Graph.Variants {
		if v.Name == name {
			return true
		}
	}
	return false
}
