package triplet

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/threadgraph/pkg/common"
)

// Generator produces n decoded output sequences for one input text.
type Generator interface {
	GenerateSequences(ctx context.Context, text string, n int) ([]string, error)
}

// Extractor asks a Generator for several candidate sequences and parses the
// triples out of each of them.
type Extractor struct {
	Model     Generator
	Sequences int
}

func (e *Extractor) Extract(ctx context.Context, text string) ([]common.Triple, error) {
	n := e.Sequences
	if n <= 0 {
		n = 1
	}

	sequences, err := e.Model.GenerateSequences(ctx, text, n)
	if err != nil {
		return nil, fmt.Errorf("failed to generate sequences: %w", err)
	}

	var triples []common.Triple
	for _, seq := range sequences {
		triples = append(triples, ParseDecoded(seq)...)
	}
	return triples, nil
}
