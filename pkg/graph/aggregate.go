package graph

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/OFFIS-RIT/threadgraph/pkg/common"
	"github.com/OFFIS-RIT/threadgraph/pkg/logger"

	"github.com/tidwall/gjson"
)

// RawEdge is an unordered entity pair with its co-occurrence count.
// Head sorts before Tail.
type RawEdge struct {
	Head      string `json:"head"`
	Tail      string `json:"tail"`
	RawWeight int    `json:"raw_edge_weight"`
}

type pairKey struct {
	head, tail string
}

// Aggregator counts linked triples per unordered entity pair.
type Aggregator struct {
	counts map[pairKey]int
	order  []pairKey

	triples   int
	selfLoops int
}

func NewAggregator() *Aggregator {
	return &Aggregator{counts: make(map[pairKey]int)}
}

// Add counts one co-occurrence of head and tail. Self-loops are dropped.
func (a *Aggregator) Add(head, tail string) {
	a.triples++
	if head == tail {
		a.selfLoops++
		return
	}
	if tail < head {
		head, tail = tail, head
	}

	key := pairKey{head: head, tail: tail}
	if _, ok := a.counts[key]; !ok {
		a.order = append(a.order, key)
	}
	a.counts[key]++
}

func (a *Aggregator) AddTriple(t common.LinkedTriple) {
	a.Add(t.LinkedHead, t.LinkedTail)
}

// Edges returns one RawEdge per distinct pair in first-seen order.
func (a *Aggregator) Edges() []RawEdge {
	out := make([]RawEdge, 0, len(a.order))
	for _, key := range a.order {
		out = append(out, RawEdge{Head: key.head, Tail: key.tail, RawWeight: a.counts[key]})
	}
	return out
}

// Stats returns the number of triples seen and how many were self-loops.
func (a *Aggregator) Stats() (triples, selfLoops int) {
	return a.triples, a.selfLoops
}

// ReadJSONL adds every linked triple of r. Blank lines are ignored; lines that
// are not JSON or lack an endpoint are logged and counted as bad.
func (a *Aggregator) ReadJSONL(r io.Reader, name string) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	bad := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !gjson.Valid(line) {
			bad++
			logger.Error("Error parsing line", "file", name, "line", line)
			continue
		}

		res := gjson.GetMany(line, "linked_head", "linked_tail")
		if !res[0].Exists() || !res[1].Exists() {
			bad++
			logger.Error("Linked triple is missing an endpoint", "file", name, "line", line)
			continue
		}
		a.Add(res[0].String(), res[1].String())
	}
	if err := scanner.Err(); err != nil {
		return bad, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return bad, nil
}

// ReadDir adds every *.jsonl file in dir, in name order.
func (a *Aggregator) ReadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	bad := 0
	for _, name := range names {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return bad, err
		}
		n, err := a.ReadJSONL(f, name)
		f.Close()
		bad += n
		if err != nil {
			return bad, err
		}
	}
	return bad, nil
}
