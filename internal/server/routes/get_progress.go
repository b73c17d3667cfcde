package routes

import (
	"net/http"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/threadgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/threadgraph/internal/stages"
	"github.com/OFFIS-RIT/threadgraph/pkg/checkpoint"
	"github.com/OFFIS-RIT/threadgraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

type progressResponse struct {
	Source     string `json:"source"`
	Path       string `json:"path"`
	LineCursor int64  `json:"line"`
	Done       bool   `json:"done"`
}

// GetProgressHandler lists the checkpoint of every known source, optionally
// filtered to one stage.
func GetProgressHandler(c echo.Context) error {
	type getProgressParams struct {
		Stage string `query:"stage" validate:"omitempty,oneof=extract clean triplets link"`
	}

	params := new(getProgressParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	states, err := stages.Progress(c.Request().Context(), app.Store)
	if err != nil {
		logger.Error("Failed to list checkpoints", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list checkpoints"})
	}

	res := make([]progressResponse, 0, len(states))
	for _, s := range states {
		if params.Stage != "" && !strings.HasPrefix(s.SourceID, params.Stage+"/") {
			continue
		}
		res = append(res, toProgressResponse(s))
	}
	slices.SortFunc(res, func(a, b progressResponse) int {
		return strings.Compare(a.Source, b.Source)
	})

	return c.JSON(http.StatusOK, res)
}

func toProgressResponse(s checkpoint.State) progressResponse {
	return progressResponse{
		Source:     s.SourceID,
		Path:       s.Path,
		LineCursor: s.LineCursor,
		Done:       s.Done,
	}
}
