// Package stages holds the line transforms of each pipeline step and the
// wiring that runs them over configured sources.
package stages

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/OFFIS-RIT/threadgraph/internal/config"
	"github.com/OFFIS-RIT/threadgraph/internal/storage"
	"github.com/OFFIS-RIT/threadgraph/pkg/ai"
	"github.com/OFFIS-RIT/threadgraph/pkg/archive"
	"github.com/OFFIS-RIT/threadgraph/pkg/checkpoint"
	"github.com/OFFIS-RIT/threadgraph/pkg/common"
	"github.com/OFFIS-RIT/threadgraph/pkg/graph"
	"github.com/OFFIS-RIT/threadgraph/pkg/kb"
	"github.com/OFFIS-RIT/threadgraph/pkg/logger"
	"github.com/OFFIS-RIT/threadgraph/pkg/pipeline"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// intermediate JSONL files are read in smaller chunks than archives
const jsonlChunkSize = 1 << 20

// Deps are the services a stage run may need. Only Config and Store are
// required; S3, Model, Searcher and Graphs are used when set.
type Deps struct {
	Config *config.Config
	Store  checkpoint.Store

	S3       *s3.Client
	Model    ai.Client
	Searcher kb.Searcher
	Graphs   *graph.PgxWriter
}

// SourceID names a source in the checkpoint store.
func SourceID(stage common.Stage, name string) string {
	return string(stage) + "/" + name
}

// RunSource runs one line-based stage over one configured source.
func RunSource(ctx context.Context, deps Deps, stage common.Stage, name string) (pipeline.Summary, error) {
	src, ok := deps.Config.Source(string(stage), name)
	if !ok {
		return pipeline.Summary{}, fmt.Errorf("unknown %s source %q", stage, name)
	}

	switch stage {
	case common.StageExtract:
		return runExtract(ctx, deps, src)
	case common.StageClean:
		return runClean(ctx, deps, src)
	case common.StageTriplets:
		return runTriplets(ctx, deps, src)
	case common.StageLink:
		return runLink(ctx, deps, src)
	}
	return pipeline.Summary{}, fmt.Errorf("stage %s is not line-based", stage)
}

// RunStage runs stage over all of its sources in configuration order and
// stops at the first failure.
func RunStage(ctx context.Context, deps Deps, stage common.Stage) error {
	for _, src := range deps.Config.Sources(string(stage)) {
		logger.Info("Processing source", "stage", stage, "source", src.Name)
		if _, err := RunSource(ctx, deps, stage, src.Name); err != nil {
			return err
		}
	}
	return nil
}

// RunAll runs every line-based stage followed by the graph stage.
func RunAll(ctx context.Context, deps Deps) error {
	for _, stage := range common.Stages {
		if err := RunStage(ctx, deps, stage); err != nil {
			return err
		}
	}
	_, err := RunGraph(ctx, deps)
	return err
}

// input is a line reader that also owns its underlying stream.
type input struct {
	*archive.Reader
	src io.Closer
}

func (in *input) Close() error {
	return errors.Join(in.Reader.Close(), in.src.Close())
}

// openLines opens a local file or s3:// object, decompressing .zst input.
// size is the number of input bytes or -1 if unknown.
func openLines(ctx context.Context, deps Deps, path string, opts archive.Options) (*input, int64, error) {
	var (
		rc   io.ReadCloser
		size int64 = -1
	)

	if bucket, key, ok := storage.ParseURI(path); ok {
		if deps.S3 == nil {
			return nil, 0, fmt.Errorf("no S3 client configured for %s", path)
		}
		body, n, err := storage.OpenObject(ctx, deps.S3, bucket, key)
		if err != nil {
			return nil, 0, err
		}
		rc, size = body, n
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to open input: %w", err)
		}
		if info, err := f.Stat(); err == nil {
			size = info.Size()
		}
		rc = f
	}

	var (
		r   *archive.Reader
		err error
	)
	if strings.HasSuffix(path, ".zst") {
		r, err = archive.NewZstdReader(rc, opts)
	} else {
		r = archive.NewReader(rc, opts)
	}
	if err != nil {
		rc.Close()
		return nil, 0, err
	}
	return &input{Reader: r, src: rc}, size, nil
}

type runParams[T any] struct {
	stage     common.Stage
	src       config.Source
	opts      archive.Options
	transform pipeline.Transform[T]
	flush     int
	progress  int
	extra     func() []any
}

func runJSONL[T any](ctx context.Context, deps Deps, p runParams[T]) (pipeline.Summary, error) {
	lines, size, err := openLines(ctx, deps, p.src.Path, p.opts)
	if err != nil {
		return pipeline.Summary{}, err
	}
	defer lines.Close()

	sink, err := pipeline.OpenJSONLSink[T](p.src.Output)
	if err != nil {
		return pipeline.Summary{}, err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Error("Failed to close output", "path", p.src.Output, "err", err)
		}
	}()

	summary, err := pipeline.Run(ctx, pipeline.Params[T]{
		SourceID:         SourceID(p.stage, p.src.Name),
		Path:             p.src.Path,
		Lines:            lines,
		Transform:        p.transform,
		Sink:             sink,
		Store:            deps.Store,
		FlushInterval:    p.flush,
		ProgressInterval: p.progress,
		TotalBytes:       size,
		Progress:         p.extra,
	})
	if err != nil {
		return summary, err
	}
	if !summary.AlreadyDone {
		logger.Info("Data has been written", "path", p.src.Output)
	}
	return summary, nil
}

// IsFatal reports whether err must stop the worker instead of being retried.
func IsFatal(err error) bool {
	return errors.Is(err, kb.ErrAuthDenied)
}
