package stages

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/OFFIS-RIT/threadgraph/internal/config"
	"github.com/OFFIS-RIT/threadgraph/pkg/archive"
	"github.com/OFFIS-RIT/threadgraph/pkg/common"
	"github.com/OFFIS-RIT/threadgraph/pkg/pipeline"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const permalinkPrefix = "https://www.reddit.com/"

var (
	errInvalidJSON    = errors.New("invalid JSON")
	errMissingCreated = errors.New("missing created_utc")
)

var pathEscaper = strings.NewReplacer(`\`, `\\`, `.`, `\.`)

// escapePath quotes a plain key for gjson/sjson.
func escapePath(key string) string {
	return pathEscaper.Replace(key)
}

// Extractor keeps the mapped fields of each archive record and tracks the
// newest created_utc it has seen.
type Extractor struct {
	fields []config.Field
	latest time.Time
}

func NewExtractor(fields []config.Field) *Extractor {
	return &Extractor{fields: fields}
}

// Transform maps one raw record. Absent fields become null and a permalink
// is expanded to a full URL.
func (e *Extractor) Transform(_ context.Context, line string) ([]json.RawMessage, error) {
	if !gjson.Valid(line) {
		return nil, pipeline.Malformed(errInvalidJSON)
	}
	created := gjson.Get(line, "created_utc")
	if !created.Exists() || created.Type == gjson.Null {
		return nil, pipeline.Malformed(errMissingCreated)
	}

	out := "{}"
	for _, f := range e.fields {
		v := gjson.Get(line, escapePath(f.From))

		var err error
		switch {
		case !v.Exists():
			out, err = sjson.SetRaw(out, escapePath(f.To), "null")
		case f.From == "permalink" && v.Type != gjson.Null && v.String() != "":
			out, err = sjson.Set(out, escapePath(f.To), permalinkPrefix+v.String())
		default:
			out, err = sjson.SetRaw(out, escapePath(f.To), v.Raw)
		}
		if err != nil {
			return nil, pipeline.Malformed(err)
		}
	}

	if ts := time.Unix(created.Int(), 0).UTC(); ts.After(e.latest) {
		e.latest = ts
	}
	return []json.RawMessage{json.RawMessage(out)}, nil
}

// Progress reports the newest record timestamp.
func (e *Extractor) Progress() []any {
	if e.latest.IsZero() {
		return nil
	}
	return []any{"created", e.latest.Format(time.DateTime)}
}

func runExtract(ctx context.Context, deps Deps, src config.Source) (pipeline.Summary, error) {
	cfg := deps.Config.Extract
	ex := NewExtractor(src.Fields)
	return runJSONL(ctx, deps, runParams[json.RawMessage]{
		stage: common.StageExtract,
		src:   src,
		opts: archive.Options{
			ChunkSize:       cfg.ChunkSize,
			MaxWindow:       cfg.MaxDecodeWindow,
			DropPartialTail: cfg.DropPartialTail,
		},
		transform: ex.Transform,
		flush:     cfg.FlushInterval,
		progress:  cfg.ProgressInterval,
		extra:     ex.Progress,
	})
}
