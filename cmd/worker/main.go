package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/threadgraph/internal/config"
	"github.com/OFFIS-RIT/threadgraph/internal/db"
	"github.com/OFFIS-RIT/threadgraph/internal/queue"
	"github.com/OFFIS-RIT/threadgraph/internal/stages"
	"github.com/OFFIS-RIT/threadgraph/internal/storage"
	"github.com/OFFIS-RIT/threadgraph/internal/util"
	"github.com/OFFIS-RIT/threadgraph/pkg/graph"
	"github.com/OFFIS-RIT/threadgraph/pkg/leaselock"
	"github.com/OFFIS-RIT/threadgraph/pkg/logger"
	"github.com/OFFIS-RIT/threadgraph/pkg/logger/console"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	cfg, err := config.Load(util.GetEnvString("PIPELINE_CONFIG", "pipeline.toml"))
	if err != nil {
		logger.Fatal("Failed to load pipeline config", "err", err)
	}

	// Postgres is optional for a single worker on the file backend.
	var pool *pgxpool.Pool
	if util.GetEnv("DATABASE_URL") != "" {
		pool, err = db.Connect(ctx)
		if err != nil {
			logger.Fatal("Unable to connect to database", "err", err)
		}
		defer pool.Close()
	}

	store, closeStore, err := stages.OpenStore(cfg.Checkpoint, pool)
	if err != nil {
		logger.Fatal("Failed to open checkpoint store", "err", err)
	}
	defer closeStore()

	model, err := stages.NewModelFromEnv()
	if err != nil {
		logger.Fatal("Failed to create model client", "err", err)
	}

	deps := stages.Deps{
		Config:   cfg,
		Store:    store,
		Model:    model,
		Searcher: stages.NewSearcher(cfg.Link),
	}

	if util.GetEnv("AWS_ENDPOINT") != "" || cfg.Graph.UploadPrefix != "" {
		client, err := storage.NewS3Client(ctx)
		if err != nil {
			logger.Fatal("Failed to create S3 client", "err", err)
		}
		deps.S3 = client
	}

	var locks *leaselock.Locker
	if pool != nil {
		deps.Graphs = graph.NewPgxWriter(pool)
		locks = leaselock.New(pool)
	}

	handler := &queue.Handler{
		Deps:   deps,
		Locks:  locks,
		Holder: util.GetEnvString("WORKER_ID", hostname()),
	}

	// Init rabbitmq
	conn, err := queue.Init()
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	if err := queue.SetupQueues(ch, queue.Names()); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}
	ch.Close()

	worker := &queue.Worker{Conn: conn, Handler: handler}
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Worker stopped", "err", err)
	}
	logger.Info("Worker shut down")
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "worker"
	}
	return name
}
