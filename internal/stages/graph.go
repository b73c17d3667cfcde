package stages

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/threadgraph/internal/storage"
	"github.com/OFFIS-RIT/threadgraph/pkg/graph"
	"github.com/OFFIS-RIT/threadgraph/pkg/logger"
)

// GraphResult summarizes a graph stage run.
type GraphResult struct {
	Triples   int
	SelfLoops int
	BadLines  int
	RawEdges  int
	Variants  map[string]graph.Graph
	Files     []string
	Uploaded  []string
}

// RunGraph aggregates all linked triples in the input directory once and
// writes the raw edge list plus every configured variant.
func RunGraph(ctx context.Context, deps Deps) (GraphResult, error) {
	cfg := deps.Config.Graph
	res := GraphResult{Variants: make(map[string]graph.Graph, len(cfg.Variants))}

	agg := graph.NewAggregator()
	bad, err := agg.ReadDir(cfg.InputDir)
	if err != nil {
		return res, err
	}
	res.BadLines = bad
	res.Triples, res.SelfLoops = agg.Stats()

	raw := agg.Edges()
	res.RawEdges = len(raw)
	logger.Info("Triples aggregated",
		"triples", res.Triples,
		"self_loops", res.SelfLoops,
		"edges", res.RawEdges,
		"bad_lines", bad,
	)

	path, err := graph.WriteJSON(cfg.OutputDir, "raw_kg_data.json", rawEdgeList(raw))
	if err != nil {
		return res, err
	}
	res.Files = append(res.Files, path)

	for _, v := range cfg.Variants {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		g, err := graph.Normalize(raw, v.Threshold)
		if err != nil {
			return res, fmt.Errorf("variant %s: %w", v.Name, err)
		}
		res.Variants[v.Name] = g
		logger.Info("Graph variant built", "variant", v.Name, "threshold", v.Threshold, "edges", len(g.Edges), "nodes", len(g.Nodes))

		path, err := graph.WriteJSON(cfg.OutputDir, v.Name+"_kg_data.json", g.EdgeList())
		if err != nil {
			return res, err
		}
		res.Files = append(res.Files, path)

		if v.Gephi {
			paths, err := graph.WriteGephi(cfg.OutputDir, cfg.Basename+"_"+v.Name, g)
			if err != nil {
				return res, err
			}
			res.Files = append(res.Files, paths...)
		}

		if cfg.Store && deps.Graphs != nil {
			if err := deps.Graphs.ReplaceVariant(ctx, v.Name, g); err != nil {
				return res, err
			}
		}
	}

	if cfg.UploadPrefix != "" {
		if deps.S3 == nil {
			logger.Warn("Upload prefix set but no S3 client configured, skipping upload")
		} else {
			keys, err := storage.Upload(ctx, deps.S3, cfg.UploadPrefix, res.Files)
			res.Uploaded = keys
			if err != nil {
				return res, err
			}
			logger.Info("Graph exports uploaded", "prefix", cfg.UploadPrefix, "files", len(keys))
		}
	}

	return res, nil
}

func rawEdgeList(raw []graph.RawEdge) []graph.RawEdge {
	if raw == nil {
		return []graph.RawEdge{}
	}
	return raw
}
