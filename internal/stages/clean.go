package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/threadgraph/internal/config"
	"github.com/OFFIS-RIT/threadgraph/pkg/ai"
	"github.com/OFFIS-RIT/threadgraph/pkg/archive"
	"github.com/OFFIS-RIT/threadgraph/pkg/common"
	"github.com/OFFIS-RIT/threadgraph/pkg/logger"
	"github.com/OFFIS-RIT/threadgraph/pkg/pipeline"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	KindComments    = "comments"
	KindSubmissions = "submissions"
)

// removedBodies are the placeholders the archive uses for a submission body
// that was deleted or removed by a moderator.
var removedBodies = []string{
	"[deleted]", "deleted", "[deleted", "deleted]",
	"[removed]", "removed", "[removed", "removed]",
}

// EntityChecker decides whether a text is worth sending to the relation model.
type EntityChecker interface {
	HasEntities(ctx context.Context, text string) (bool, error)
}

// Cleaner drops records without usable text and adds a "text" field built
// from the record's title and body.
type Cleaner struct {
	Kind     string
	MinWords int
	Filter   EntityChecker
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func (c *Cleaner) Transform(ctx context.Context, line string) ([]json.RawMessage, error) {
	if !gjson.Valid(line) {
		return nil, pipeline.Malformed(errInvalidJSON)
	}

	var (
		doc  = line
		text string
		keep bool
		err  error
	)
	switch c.Kind {
	case KindComments:
		doc, text, keep, err = c.comment(line)
	case KindSubmissions:
		doc, text, keep, err = c.submission(line)
	default:
		return nil, fmt.Errorf("unknown source kind %q", c.Kind)
	}
	if err != nil || !keep {
		return nil, err
	}

	if c.Filter != nil {
		ok, err := c.Filter.HasEntities(ctx, text)
		if err != nil {
			return nil, err
		}
		if !ok {
			logger.Debug("Skipping record without entities")
			return nil, nil
		}
	}

	doc, err = sjson.Set(doc, "text", text)
	if err != nil {
		return nil, pipeline.Malformed(err)
	}
	return []json.RawMessage{json.RawMessage(doc)}, nil
}

func (c *Cleaner) comment(line string) (string, string, bool, error) {
	res := gjson.GetMany(line, "author", "body")
	if !res[0].Exists() || !res[1].Exists() {
		return "", "", false, pipeline.Malformed(errors.New("comment needs author and body"))
	}
	body := res[1].String()

	switch {
	case res[0].String() == "AutoModerator":
		logger.Debug("Skipping line due to AutoModerator comment")
		return "", "", false, nil
	case body == "[deleted]" || body == "[removed]":
		logger.Debug("Skipping line due to comment being deleted")
		return "", "", false, nil
	case wordCount(body) < c.MinWords:
		logger.Debug("Skipping line due to length", "words", wordCount(body))
		return "", "", false, nil
	}
	return line, body, true, nil
}

func (c *Cleaner) submission(line string) (string, string, bool, error) {
	res := gjson.GetMany(line, "title", "body")
	if !res[0].Exists() || !res[1].Exists() {
		return "", "", false, pipeline.Malformed(errors.New("submission needs title and body"))
	}
	title, body := res[0].String(), res[1].String()

	if wordCount(title) < c.MinWords && wordCount(body) < c.MinWords {
		logger.Debug("Skipping line due to length")
		return "", "", false, nil
	}

	doc := line
	if slices.Contains(removedBodies, body) {
		var err error
		doc, err = sjson.SetRaw(line, "body", "null")
		if err != nil {
			return "", "", false, pipeline.Malformed(err)
		}
		body = ""
	}

	text := title
	if body != "" {
		text = title + "\n\n" + body
	}
	return doc, text, true, nil
}

func runClean(ctx context.Context, deps Deps, src config.Source) (pipeline.Summary, error) {
	cfg := deps.Config.Clean
	cleaner := &Cleaner{Kind: src.Kind, MinWords: cfg.MinWords}
	if cfg.EntityFilter {
		if deps.Model == nil {
			return pipeline.Summary{}, errors.New("entity filter enabled but no model configured")
		}
		cleaner.Filter = ai.NewEntityFilter(deps.Model, filterOptions(cfg)...)
	}

	return runJSONL(ctx, deps, runParams[json.RawMessage]{
		stage:     common.StageClean,
		src:       src,
		opts:      archive.Options{ChunkSize: jsonlChunkSize},
		transform: cleaner.Transform,
		flush:     cfg.FlushInterval,
		progress:  cfg.ProgressInterval,
	})
}

func filterOptions(cfg config.CleanConfig) []ai.GenerateOption {
	opts := []ai.GenerateOption{ai.WithTemperature(cfg.FilterTemperature)}
	if cfg.FilterModel != "" {
		opts = append(opts, ai.WithModel(cfg.FilterModel))
	}
	if cfg.FilterThinking != "" {
		opts = append(opts, ai.WithThinking(cfg.FilterThinking))
	}
	return opts
}
