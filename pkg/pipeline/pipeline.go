// Package pipeline drives a resumable, line-by-line transform over one input
// source and commits its output together with a progress cursor.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/OFFIS-RIT/threadgraph/pkg/checkpoint"
	"github.com/OFFIS-RIT/threadgraph/pkg/logger"
)

const (
	DefaultFlushInterval    = 100
	DefaultProgressInterval = 100000
)

// LineSource yields lines together with the number of input bytes consumed.
// It returns io.EOF when exhausted.
type LineSource interface {
	Next() (string, int64, error)
}

// Sink receives the records produced by a transform.
//
// Rewind positions the sink at offset before the first write of a run;
// checkpoint.UnknownOffset means append. Commit makes all writes durable and
// returns the resulting offset.
type Sink[T any] interface {
	Rewind(offset int64) error
	Write(records []T) error
	Commit() (int64, error)
}

// Transform turns one line into zero or more records. Returning an error that
// matches ErrMalformed skips the line; any other error aborts the run.
type Transform[T any] func(ctx context.Context, line string) ([]T, error)

type Params[T any] struct {
	SourceID  string
	Path      string
	Lines     LineSource
	Transform Transform[T]
	Sink      Sink[T]
	Store     checkpoint.Store

	FlushInterval    int
	ProgressInterval int
	// TotalBytes is the input size used for percentage progress, if known.
	TotalBytes int64
	// Progress returns extra key/value pairs for progress log lines.
	Progress func() []any
}

// Summary reports the outcome of one run.
type Summary struct {
	SourceID    string
	AlreadyDone bool
	Lines       int64
	Skipped     int64
	BadLines    int64
	Records     int64
}

type run[T any] struct {
	p     Params[T]
	log   *logger.Logger
	state checkpoint.State

	buffer  []T
	summary Summary
}

// Run processes every line of p.Lines that is past the stored cursor.
//
// Lines are numbered from 1. The cursor is the number of the last committed
// line, so a resumed run starts at cursor+1. Output and cursor are committed
// every FlushInterval lines and once more at the end, when the state is also
// marked done. A state that is already done makes Run a no-op.
func Run[T any](ctx context.Context, p Params[T]) (Summary, error) {
	if p.FlushInterval <= 0 {
		p.FlushInterval = DefaultFlushInterval
	}
	if p.ProgressInterval <= 0 {
		p.ProgressInterval = DefaultProgressInterval
	}

	r := &run[T]{
		p:       p,
		log:     logger.With("source", p.SourceID),
		summary: Summary{SourceID: p.SourceID},
	}

	state, err := p.Store.Get(ctx, p.SourceID)
	if err != nil {
		return r.summary, fmt.Errorf("failed to load checkpoint for %s: %w", p.SourceID, err)
	}
	r.state = state
	r.state.SourceID = p.SourceID
	if p.Path != "" {
		r.state.Path = p.Path
	}

	if state.Done {
		r.log.Info("Source already processed, skipping")
		r.summary.AlreadyDone = true
		return r.summary, nil
	}

	if err := p.Sink.Rewind(state.OutputOffset); err != nil {
		return r.summary, fmt.Errorf("failed to rewind output for %s: %w", p.SourceID, err)
	}
	if state.LineCursor > 0 {
		r.log.Info("Resuming source", "line", state.LineCursor)
	}

	var lineNo int64
	for {
		if err := ctx.Err(); err != nil {
			return r.summary, err
		}

		line, offset, err := p.Lines.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return r.summary, r.fail(lineNo+1, err)
		}
		lineNo++
		r.summary.Lines = lineNo

		if lineNo <= state.LineCursor {
			r.summary.Skipped++
			continue
		}

		records, err := p.Transform(ctx, line)
		switch {
		case errors.Is(err, ErrMalformed):
			r.summary.BadLines++
			r.log.Debug("Skipping malformed line", "line", lineNo, "err", err)
		case err != nil:
			return r.summary, r.fail(lineNo, err)
		default:
			r.buffer = append(r.buffer, records...)
		}

		if lineNo%int64(p.FlushInterval) == 0 {
			if err := r.commit(ctx, lineNo, false); err != nil {
				return r.summary, r.fail(lineNo, err)
			}
		}
		if lineNo%int64(p.ProgressInterval) == 0 {
			r.progress(lineNo, offset)
		}
	}

	final := max(lineNo, state.LineCursor)
	if err := r.commit(ctx, final, true); err != nil {
		return r.summary, r.fail(final, err)
	}

	r.log.Info("Source complete",
		"lines", r.summary.Lines,
		"bad_lines", r.summary.BadLines,
		"records", r.summary.Records,
	)
	return r.summary, nil
}

func (r *run[T]) commit(ctx context.Context, lineNo int64, done bool) error {
	if len(r.buffer) > 0 {
		if err := r.p.Sink.Write(r.buffer); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		r.summary.Records += int64(len(r.buffer))
		r.buffer = r.buffer[:0]
	}

	offset, err := r.p.Sink.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit output: %w", err)
	}

	r.state.LineCursor = lineNo
	r.state.OutputOffset = offset
	r.state.Done = done
	if err := r.p.Store.Set(ctx, r.state); err != nil {
		return fmt.Errorf("failed to store checkpoint: %w", err)
	}
	if err := r.p.Store.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush checkpoint: %w", err)
	}
	return nil
}

func (r *run[T]) progress(lineNo, offset int64) {
	keyvals := []any{"lines", lineNo, "bad_lines", r.summary.BadLines, "offset", offset}
	if r.p.TotalBytes > 0 {
		pct := float64(offset) / float64(r.p.TotalBytes) * 100
		keyvals = append(keyvals, "percent", fmt.Sprintf("%.1f", pct))
	}
	if r.p.Progress != nil {
		keyvals = append(keyvals, r.p.Progress()...)
	}
	r.log.Info("Progress", keyvals...)
}

func (r *run[T]) fail(lineNo int64, err error) error {
	r.log.Error("Run aborted", "line", lineNo, "err", err)
	return &RunError{Source: r.p.SourceID, Line: lineNo, Err: err}
}
