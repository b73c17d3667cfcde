package middleware

import (
	"context"

	"github.com/OFFIS-RIT/threadgraph/internal/config"
	"github.com/OFFIS-RIT/threadgraph/internal/queue"
	"github.com/OFFIS-RIT/threadgraph/pkg/checkpoint"
	"github.com/OFFIS-RIT/threadgraph/pkg/graph"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/labstack/echo/v4"
)

type AppUser struct {
	Subject     string
	Role        string
	Permissions []string
}

// GraphLoader returns a stored graph variant.
type GraphLoader interface {
	LoadVariant(ctx context.Context, variant string) (graph.Graph, error)
}

type App struct {
	Config       *config.Config
	Store        checkpoint.Store
	Graphs       GraphLoader
	Queue        queue.Publisher
	Key          keyfunc.Keyfunc
	MasterAPIKey string
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
