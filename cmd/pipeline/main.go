package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/threadgraph/internal/config"
	"github.com/OFFIS-RIT/threadgraph/internal/db"
	"github.com/OFFIS-RIT/threadgraph/internal/stages"
	"github.com/OFFIS-RIT/threadgraph/internal/storage"
	"github.com/OFFIS-RIT/threadgraph/internal/util"
	"github.com/OFFIS-RIT/threadgraph/pkg/checkpoint"
	"github.com/OFFIS-RIT/threadgraph/pkg/common"
	"github.com/OFFIS-RIT/threadgraph/pkg/graph"
	"github.com/OFFIS-RIT/threadgraph/pkg/logger"
	"github.com/OFFIS-RIT/threadgraph/pkg/logger/console"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Build a knowledge graph from a Reddit archive",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
			Debug: debug || util.GetEnvBool("DEBUG", false),
		}))
	},
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run [stage [source]]",
	Short: "Run every stage, one stage, or one source of a stage",
	Long: `Run the pipeline on this machine.

Without arguments every line-based stage runs over all of its sources in
order, followed by the graph stage. Finished sources are skipped and
interrupted sources resume from their last checkpoint.

Examples:
  pipeline run                               # everything
  pipeline run clean                         # every clean source
  pipeline run triplets conspiracy_comments  # one source
  pipeline run graph                         # rebuild graph files`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd.Context(), func(ctx context.Context, deps stages.Deps) error {
			if len(args) == 0 {
				return stages.RunAll(ctx, deps)
			}

			stage, ok := common.ParseStage(args[0])
			if !ok {
				return fmt.Errorf("unknown stage %q", args[0])
			}
			if stage == common.StageGraph {
				res, err := stages.RunGraph(ctx, deps)
				if err != nil {
					return err
				}
				logger.Info("Graph built", "triples", res.Triples, "edges", res.RawEdges, "files", len(res.Files))
				return nil
			}
			if len(args) == 1 {
				return stages.RunStage(ctx, deps, stage)
			}

			sum, err := stages.RunSource(ctx, deps, stage, args[1])
			if err != nil {
				return err
			}
			logger.Info("Source finished", "source", sum.SourceID, "lines", sum.Lines, "records", sum.Records, "bad_lines", sum.BadLines)
			return nil
		})
	},
}

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show the checkpoint of every known source",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		var store checkpoint.Store
		if cfg.Checkpoint.Backend == "postgres" {
			pool, err := db.Connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			store = checkpoint.NewPgxStore(pool)
		} else {
			store = checkpoint.NewSnapshotStore(cfg.Checkpoint.Path)
		}

		states, err := stages.Progress(cmd.Context(), store)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, st := range states {
			status := "running"
			if st.Done {
				status = "done"
			}
			fmt.Fprintf(out, "%-48s %-8s line %d\n", st.SourceID, status, st.LineCursor)
		}
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset <stage> <source>",
	Short: "Forget the checkpoint of a source so it is processed again",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		stage, ok := common.ParseStage(args[0])
		if !ok || stage == common.StageGraph {
			return fmt.Errorf("unknown line-based stage %q", args[0])
		}
		return withDeps(cmd.Context(), func(ctx context.Context, deps stages.Deps) error {
			if _, ok := deps.Config.Source(args[0], args[1]); !ok {
				return fmt.Errorf("unknown %s source %q", stage, args[1])
			}
			if err := stages.Reset(ctx, deps.Store, stage, args[1]); err != nil {
				return err
			}
			logger.Info("Checkpoint reset", "source", stages.SourceID(stage, args[1]))
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", util.GetEnvString("PIPELINE_CONFIG", "pipeline.toml"), "pipeline configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(runCmd, progressCmd, resetCmd)
}

// withDeps loads the configuration, opens the checkpoint store and the
// optional Postgres, S3 and model clients, and hands them to fn.
func withDeps(ctx context.Context, fn func(context.Context, stages.Deps) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	var pool *pgxpool.Pool
	if util.GetEnv("DATABASE_URL") != "" {
		pool, err = db.Connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	store, closeStore, err := stages.OpenStore(cfg.Checkpoint, pool)
	if err != nil {
		return err
	}
	defer closeStore()

	deps := stages.Deps{
		Config:   cfg,
		Store:    store,
		Searcher: stages.NewSearcher(cfg.Link),
	}
	if pool != nil {
		deps.Graphs = graph.NewPgxWriter(pool)
	}

	// Stages without a model dependency still run when no adapter is set up.
	if model, err := stages.NewModelFromEnv(); err != nil {
		logger.Warn("Model client unavailable", "err", err)
	} else {
		deps.Model = model
	}

	if util.GetEnv("AWS_ENDPOINT") != "" || cfg.Graph.UploadPrefix != "" {
		client, err := storage.NewS3Client(ctx)
		if err != nil {
			return err
		}
		deps.S3 = client
	}

	return fn(ctx, deps)
}

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("Pipeline failed", "err", err)
		stop()
		os.Exit(1)
	}
}
