package stages

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/OFFIS-RIT/threadgraph/internal/config"
	"github.com/OFFIS-RIT/threadgraph/pkg/archive"
	"github.com/OFFIS-RIT/threadgraph/pkg/common"
	"github.com/OFFIS-RIT/threadgraph/pkg/kb"
	"github.com/OFFIS-RIT/threadgraph/pkg/logger"
	"github.com/OFFIS-RIT/threadgraph/pkg/pipeline"

	"github.com/tidwall/gjson"
)

// Linker resolves both ends of a raw triple and keeps it only when both
// resolve.
type Linker struct {
	Resolver *kb.Resolver

	unlinked atomic.Int64
}

func (l *Linker) Transform(ctx context.Context, line string) ([]common.LinkedTriple, error) {
	if !gjson.Valid(line) {
		return nil, pipeline.Malformed(errInvalidJSON)
	}
	res := gjson.GetMany(line, "head", "type", "tail")
	if !res[0].Exists() || !res[2].Exists() {
		return nil, pipeline.Malformed(errors.New("triple needs head and tail"))
	}
	head, tail := res[0].String(), res[2].String()

	linkedHead, okHead, err := l.Resolver.Resolve(ctx, head)
	if err != nil {
		return nil, err
	}
	linkedTail, okTail, err := l.Resolver.Resolve(ctx, tail)
	if err != nil {
		return nil, err
	}

	if !okHead || !okTail {
		l.unlinked.Add(1)
		logger.Warn("Failed to link entities", "head", head, "tail", tail)
		return nil, nil
	}

	return []common.LinkedTriple{{
		LinkedHead:   linkedHead,
		OriginalHead: head,
		Relation:     res[1].String(),
		LinkedTail:   linkedTail,
		OriginalTail: tail,
	}}, nil
}

// Unlinked is the number of triples dropped because an end did not resolve.
func (l *Linker) Unlinked() int64 {
	return l.unlinked.Load()
}

// NewSearcher builds the Wikidata searcher described by cfg.
func NewSearcher(cfg config.LinkConfig) kb.Searcher {
	return kb.NewWikidataSearcher(kb.WikidataParams{
		Endpoint:   cfg.Endpoint,
		Language:   cfg.Language,
		UserAgent:  cfg.UserAgent,
		Timeout:    cfg.Timeout(),
		MaxRetries: cfg.MaxRetries,
	})
}

func runLink(ctx context.Context, deps Deps, src config.Source) (pipeline.Summary, error) {
	cfg := deps.Config.Link
	searcher := deps.Searcher
	if searcher == nil {
		searcher = NewSearcher(cfg)
	}
	linker := &Linker{Resolver: kb.NewResolver(searcher, cfg.SimilarityThreshold)}

	return runJSONL(ctx, deps, runParams[common.LinkedTriple]{
		stage:     common.StageLink,
		src:       src,
		opts:      archive.Options{ChunkSize: jsonlChunkSize},
		transform: linker.Transform,
		flush:     cfg.FlushInterval,
		progress:  cfg.ProgressInterval,
		extra: func() []any {
			return []any{"unlinked", linker.Unlinked()}
		},
	})
}
