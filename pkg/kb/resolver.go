package kb

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/threadgraph/pkg/logger"
)

const DefaultThreshold = 70

// Resolver maps a mention to the label of its best knowledge-base candidate.
// Every call queries the searcher; results are not cached.
type Resolver struct {
	searcher  Searcher
	threshold int
}

func NewResolver(searcher Searcher, threshold int) *Resolver {
	if threshold < 0 || threshold > 100 {
		threshold = DefaultThreshold
	}
	return &Resolver{searcher: searcher, threshold: threshold}
}

// Resolve returns the canonical label for mention, or false if nothing
// qualifies. Only an access denial is returned as an error; unavailable
// lookups are logged and count as no match.
func (r *Resolver) Resolve(ctx context.Context, mention string) (string, bool, error) {
	candidates, err := r.searcher.Search(ctx, mention)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			logger.Warn("Knowledge base lookup failed", "mention", mention, "err", err)
			return "", false, nil
		}
		return "", false, err
	}

	best, ok := SelectBest(mention, candidates, r.threshold)
	if !ok {
		return "", false, nil
	}
	logger.Debug("Resolved mention", "mention", mention, "label", best.Label, "id", best.ID)
	return best.Label, true, nil
}
