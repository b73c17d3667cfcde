package graph

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/OFFIS-RIT/threadgraph/pkg/logger"
)

// WriteJSON writes v as one JSON document to dir/name and returns the path.
func WriteJSON(dir, name string, v any) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if filepath.Ext(name) != ".json" {
		name += ".json"
	}
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(v); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, f.Close()
}

// EdgeList returns the edges for JSON export; an empty graph yields [].
func (g Graph) EdgeList() []Edge {
	if g.Edges == nil {
		return []Edge{}
	}
	return g.Edges
}

// WriteEdgesCSV writes the Source,Target,Weight,Type table.
func WriteEdgesCSV(w io.Writer, edges []Edge) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Source", "Target", "Weight", "Type"}); err != nil {
		return err
	}
	for _, e := range edges {
		weight := strconv.FormatFloat(e.Weight, 'g', -1, 64)
		if err := cw.Write([]string{e.Head, e.Tail, weight, "Undirected"}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteNodesCSV writes the Id,Label table.
func WriteNodesCSV(w io.Writer, nodes []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Id", "Label"}); err != nil {
		return err
	}
	for _, n := range nodes {
		if err := cw.Write([]string{n, n}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteGephi writes <basename>_edges.csv and <basename>_nodes.csv to dir and
// returns both paths.
func WriteGephi(dir, basename string, g Graph) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	edgesPath := filepath.Join(dir, basename+"_edges.csv")
	if err := writeFile(edgesPath, func(w io.Writer) error { return WriteEdgesCSV(w, g.Edges) }); err != nil {
		return nil, err
	}
	logger.Info("Gephi edges CSV written", "path", edgesPath)

	nodesPath := filepath.Join(dir, basename+"_nodes.csv")
	if err := writeFile(nodesPath, func(w io.Writer) error { return WriteNodesCSV(w, g.Nodes) }); err != nil {
		return nil, err
	}
	logger.Info("Gephi nodes CSV written", "path", nodesPath)

	return []string{edgesPath, nodesPath}, nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// DirReader loads variants from the <variant>_kg_data.json files of an
// output directory.
type DirReader struct {
	Dir string
}

// LoadVariant reads a variant written by the graph stage. A missing file
// returns an error matching os.ErrNotExist.
func (d DirReader) LoadVariant(_ context.Context, variant string) (Graph, error) {
	data, err := os.ReadFile(filepath.Join(d.Dir, variant+"_kg_data.json"))
	if err != nil {
		return Graph{}, err
	}

	var g Graph
	if err := json.Unmarshal(data, &g.Edges); err != nil {
		return Graph{}, fmt.Errorf("failed to parse variant %s: %w", variant, err)
	}
	g.Nodes = nodesOf(g.Edges)
	return g, nil
}

func nodesOf(edges []Edge) []string {
	seen := make(map[string]struct{})
	for _, e := range edges {
		seen[e.Head] = struct{}{}
		seen[e.Tail] = struct{}{}
	}
	nodes := make([]string, 0, len(seen))
	for n := range seen {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes
}
