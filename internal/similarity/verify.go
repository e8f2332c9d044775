package similarity

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ScoredPair is a verified candidate pair with its estimated similarity.
type ScoredPair struct {
	Pair
	Similarity float64
}

// Verify estimates the similarity of every candidate of the index and keeps
// the pairs at or above threshold. Candidates are checked in parallel; the
// returned slice keeps the candidate order.
func Verify(ctx context.Context, idx *Index, signatures map[string]Signature, threshold float64, workers int) ([]ScoredPair, error) {
	candidates := idx.Candidates()
	scores := make([]float64, len(candidates))
	accepted := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, c := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a, okA := signatures[c.A]
			b, okB := signatures[c.B]
			if !okA || !okB {
				return fmt.Errorf("candidate %s/%s has no signature", c.A, c.B)
			}
			sim, err := EstimateJaccard(a, b)
			if err != nil {
				return err
			}
			scores[i] = sim
			accepted[i] = sim >= threshold
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []ScoredPair
	for i, c := range candidates {
		if accepted[i] {
			out = append(out, ScoredPair{Pair: c, Similarity: scores[i]})
		}
	}
	return out, nil
}
