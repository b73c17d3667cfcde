package graph

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type dbConn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PgxWriter stores graph variants in the graph_edges table.
type PgxWriter struct {
	db dbConn
}

func NewPgxWriter(pool *pgxpool.Pool) *PgxWriter {
	return &PgxWriter{db: pool}
}

// ReplaceVariant swaps all edges of variant for the edges of g in one
// transaction.
func (w *PgxWriter) ReplaceVariant(ctx context.Context, variant string, g Graph) error {
	tx, err := w.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, deleteVariantSQL, variant); err != nil {
		return fmt.Errorf("failed to clear variant %s: %w", variant, err)
	}

	_, err = tx.CopyFrom(
		ctx,
		pgx.Identifier{"graph_edges"},
		[]string{"variant", "head", "tail", "weight"},
		pgx.CopyFromSlice(len(g.Edges), func(i int) ([]any, error) {
			e := g.Edges[i]
			return []any{variant, e.Head, e.Tail, e.Weight}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy edges: %w", err)
	}

	return tx.Commit(ctx)
}

// LoadVariant reads a stored variant back. A variant that was never written
// yields an empty graph.
func (w *PgxWriter) LoadVariant(ctx context.Context, variant string) (Graph, error) {
	rows, err := w.db.Query(ctx, selectVariantSQL, variant)
	if err != nil {
		return Graph{}, fmt.Errorf("failed to load variant %s: %w", variant, err)
	}
	defer rows.Close()

	var g Graph
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.Head, &e.Tail, &e.Weight); err != nil {
			return Graph{}, err
		}
		g.Edges = append(g.Edges, e)
	}
	if err := rows.Err(); err != nil {
		return Graph{}, err
	}

	g.Nodes = nodesOf(g.Edges)
	return g, nil
}

const deleteVariantSQL = `
DELETE FROM graph_edges
WHERE variant = $1;
`

const selectVariantSQL = `
SELECT head, tail, weight
FROM graph_edges
WHERE variant = $1
ORDER BY weight DESC, head, tail;
`
