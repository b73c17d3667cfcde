package stages

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/threadgraph/internal/config"
	"github.com/OFFIS-RIT/threadgraph/pkg/ai"
	"github.com/OFFIS-RIT/threadgraph/pkg/archive"
	"github.com/OFFIS-RIT/threadgraph/pkg/common"
	"github.com/OFFIS-RIT/threadgraph/pkg/pipeline"
	"github.com/OFFIS-RIT/threadgraph/pkg/triplet"

	"github.com/tidwall/gjson"
)

// TripletTransform runs the relation model over the "text" field of each
// prepped record. Records without text produce nothing.
type TripletTransform struct {
	Extractor      *triplet.Extractor
	MaxInputTokens int
}

func (t *TripletTransform) Transform(ctx context.Context, line string) ([]common.Triple, error) {
	if !gjson.Valid(line) {
		return nil, pipeline.Malformed(errInvalidJSON)
	}
	text := gjson.Get(line, "text").String()
	if text == "" {
		return nil, nil
	}

	if t.MaxInputTokens > 0 {
		truncated, err := ai.TruncateTokens(text, t.MaxInputTokens)
		if err != nil {
			return nil, fmt.Errorf("failed to truncate input: %w", err)
		}
		text = truncated
	}

	return t.Extractor.Extract(ctx, text)
}

func runTriplets(ctx context.Context, deps Deps, src config.Source) (pipeline.Summary, error) {
	if deps.Model == nil {
		return pipeline.Summary{}, errors.New("no sequence model configured")
	}
	cfg := deps.Config.Triplets

	tt := &TripletTransform{
		Extractor: &triplet.Extractor{
			Model:     ai.Generator{Client: deps.Model, Opts: sequenceOptions(cfg)},
			Sequences: cfg.NumSequences,
		},
		MaxInputTokens: cfg.MaxInputTokens,
	}

	return runJSONL(ctx, deps, runParams[common.Triple]{
		stage:     common.StageTriplets,
		src:       src,
		opts:      archive.Options{ChunkSize: jsonlChunkSize},
		transform: tt.Transform,
		flush:     cfg.FlushInterval,
		progress:  cfg.ProgressInterval,
		extra: func() []any {
			m := deps.Model.GetMetrics()
			return []any{"tokens", m.TotalTokens, "tokens_per_second", m.TokenPerSecond}
		},
	})
}

func sequenceOptions(cfg config.TripletsConfig) []ai.GenerateOption {
	opts := []ai.GenerateOption{ai.WithMaxTokens(cfg.MaxInputTokens)}
	if cfg.Model != "" {
		opts = append(opts, ai.WithModel(cfg.Model))
	}
	return opts
}
