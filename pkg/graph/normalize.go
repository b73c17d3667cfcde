package graph

import (
	"fmt"
	"sort"
)

// Edge is a pruned, renormalized graph edge with a weight in [0,1].
type Edge struct {
	Head   string  `json:"head"`
	Tail   string  `json:"tail"`
	Weight float64 `json:"edge weight"`
}

// Graph is the result of one normalization pass.
type Graph struct {
	Edges []Edge
	// Nodes holds every surviving head and tail, sorted.
	Nodes []string
}

// Normalize min-max scales the raw weights, drops every edge whose scaled
// weight is not strictly above the percentile cutoff, and scales the
// survivors again so they span [0,1].
//
// The cutoff is the scaled weight at index ⌊N·percentile/100⌋ of the sorted
// weights; percentile 0 keeps every edge and 100 keeps none. raw is not
// modified, so several variants can be derived from one aggregation.
func Normalize(raw []RawEdge, percentile int) (Graph, error) {
	if percentile < 0 || percentile > 100 {
		return Graph{}, fmt.Errorf("percentile %d out of range [0,100]", percentile)
	}
	if len(raw) == 0 {
		return Graph{}, nil
	}

	weights := make([]float64, len(raw))
	for i, e := range raw {
		weights[i] = float64(e.RawWeight)
	}
	scaled := minMax(weights)

	kept := make([]int, 0, len(raw))
	if percentile == 0 {
		for i := range raw {
			kept = append(kept, i)
		}
	} else {
		sorted := append([]float64(nil), scaled...)
		sort.Float64s(sorted)
		idx := min(len(sorted)*percentile/100, len(sorted)-1)
		cutoff := sorted[idx]
		for i, w := range scaled {
			if w > cutoff {
				kept = append(kept, i)
			}
		}
	}

	survivors := make([]float64, len(kept))
	for j, i := range kept {
		survivors[j] = scaled[i]
	}
	renormalized := minMax(survivors)

	g := Graph{Edges: make([]Edge, 0, len(kept))}
	nodes := make(map[string]struct{})
	for j, i := range kept {
		g.Edges = append(g.Edges, Edge{Head: raw[i].Head, Tail: raw[i].Tail, Weight: renormalized[j]})
		nodes[raw[i].Head] = struct{}{}
		nodes[raw[i].Tail] = struct{}{}
	}
	g.Nodes = make([]string, 0, len(nodes))
	for n := range nodes {
		g.Nodes = append(g.Nodes, n)
	}
	sort.Strings(g.Nodes)
	return g, nil
}

// minMax scales values to [0,1]. Equal values all become 1.
func minMax(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	for i, v := range values {
		if hi == lo {
			out[i] = 1.0
			continue
		}
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}
