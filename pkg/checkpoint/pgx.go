package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PgxStore keeps checkpoints in the pipeline_checkpoints table. Every Set is
// written immediately, so Flush is a no-op.
type PgxStore struct {
	db dbConn
}

func NewPgxStore(pool *pgxpool.Pool) *PgxStore {
	return &PgxStore{db: pool}
}

func (s *PgxStore) Get(ctx context.Context, sourceID string) (State, error) {
	st := State{SourceID: sourceID}
	err := s.db.QueryRow(ctx, getSQL, sourceID).Scan(&st.Path, &st.LineCursor, &st.OutputOffset, &st.Done)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return State{SourceID: sourceID}, nil
		}
		return State{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return st, nil
}

// Set upserts the state. A cursor lower than the stored one is ignored.
func (s *PgxStore) Set(ctx context.Context, state State) error {
	_, err := s.db.Exec(ctx, upsertSQL, state.SourceID, state.Path, state.LineCursor, state.OutputOffset, state.Done)
	if err != nil {
		return fmt.Errorf("failed to store checkpoint: %w", err)
	}
	return nil
}

func (s *PgxStore) Flush(context.Context) error {
	return nil
}

func (s *PgxStore) List(ctx context.Context) ([]State, error) {
	rows, err := s.db.Query(ctx, listSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []State
	for rows.Next() {
		var st State
		if err := rows.Scan(&st.SourceID, &st.Path, &st.LineCursor, &st.OutputOffset, &st.Done); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Reset removes the checkpoint of a source so the next run starts over.
func (s *PgxStore) Reset(ctx context.Context, sourceID string) error {
	_, err := s.db.Exec(ctx, resetSQL, sourceID)
	return err
}

const getSQL = `
SELECT path, line_cursor, output_offset, done
FROM pipeline_checkpoints
WHERE source_id = $1;
`

const upsertSQL = `
INSERT INTO pipeline_checkpoints (source_id, path, line_cursor, output_offset, done, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (source_id) DO UPDATE
SET path          = EXCLUDED.path,
    line_cursor   = EXCLUDED.line_cursor,
    output_offset = EXCLUDED.output_offset,
    done          = pipeline_checkpoints.done OR EXCLUDED.done,
    updated_at    = now()
WHERE pipeline_checkpoints.line_cursor <= EXCLUDED.line_cursor;
`

const listSQL = `
SELECT source_id, path, line_cursor, output_offset, done
FROM pipeline_checkpoints
ORDER BY source_id;
`

const resetSQL = `
DELETE FROM pipeline_checkpoints
WHERE source_id = $1;
`
