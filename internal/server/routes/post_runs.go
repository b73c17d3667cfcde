package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/threadgraph/internal/queue"
	"github.com/OFFIS-RIT/threadgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/threadgraph/pkg/common"
	"github.com/OFFIS-RIT/threadgraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

// StartRunHandler enqueues one stage run. Graph runs take no source.
func StartRunHandler(c echo.Context) error {
	type startRunBody struct {
		Stage  string `json:"stage" validate:"required,oneof=extract clean triplets link graph"`
		Source string `json:"source"`
	}

	data := new(startRunBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	stage, _ := common.ParseStage(data.Stage)
	app := c.(*middleware.AppContext).App

	body := data.Source
	if stage == common.StageGraph {
		body = queue.GraphJob
	} else {
		if data.Source == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Source is required"})
		}
		if _, ok := app.Config.Source(data.Stage, data.Source); !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Unknown source"})
		}
	}

	queueName := queue.Name(stage)
	if err := app.Queue.Publish(queueName, []byte(body)); err != nil {
		logger.Error("Failed to enqueue run", "queue", queueName, "source", body, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to enqueue run"})
	}

	user := c.(*middleware.AppContext).User
	logger.Info("Enqueued run", "queue", queueName, "source", body, "user", user.Subject)

	return c.JSON(http.StatusAccepted, map[string]string{
		"queue":  queueName,
		"source": body,
	})
}
