package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/threadgraph/internal/config"
	"github.com/OFFIS-RIT/threadgraph/internal/db"
	"github.com/OFFIS-RIT/threadgraph/internal/queue"
	"github.com/OFFIS-RIT/threadgraph/internal/server"
	mid "github.com/OFFIS-RIT/threadgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/threadgraph/internal/util"
	"github.com/OFFIS-RIT/threadgraph/pkg/checkpoint"
	"github.com/OFFIS-RIT/threadgraph/pkg/graph"
	"github.com/OFFIS-RIT/threadgraph/pkg/logger"
	"github.com/OFFIS-RIT/threadgraph/pkg/logger/console"

	"github.com/MicahParks/keyfunc/v3"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(util.GetEnvString("PIPELINE_CONFIG", "pipeline.toml"))
	if err != nil {
		logger.Fatal("Failed to load pipeline config", "err", err)
	}

	app := &mid.App{
		Config:       cfg,
		MasterAPIKey: util.GetEnv("MASTER_API_KEY"),
		Graphs:       graph.DirReader{Dir: cfg.Graph.OutputDir},
	}

	if authURL := util.GetEnv("AUTH_URL"); authURL != "" {
		k, err := keyfunc.NewDefaultCtx(ctx, []string{authURL + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		app.Key = k
	}

	// The server only reads checkpoints, so it never takes the file lock.
	switch cfg.Checkpoint.Backend {
	case "postgres":
		pool, err := db.Connect(ctx)
		if err != nil {
			logger.Fatal("Failed to connect to database", "err", err)
		}
		defer pool.Close()
		app.Store = checkpoint.NewPgxStore(pool)
		if cfg.Graph.Store {
			app.Graphs = graph.NewPgxWriter(pool)
		}
	default:
		app.Store = checkpoint.NewSnapshotStore(cfg.Checkpoint.Path)
	}

	conn, err := queue.Init()
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()
	if err := queue.SetupQueues(ch, queue.Names()); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}
	app.Queue = queue.ChannelPublisher{Ch: ch}

	e := server.New(app)
	if err := server.Serve(ctx, e, util.GetEnvString("PORT", "8080")); err != nil {
		logger.Fatal("Server stopped", "err", err)
	}
}
