package search

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
	"github.com/MyCarrier-DevOps/cherry-harvest/internal/similarity"
)

// ExactDiffMatch pairs commits whose rendered patches are identical.
//
// Commits are grouped by patch fingerprint. In a group of k commits the
// oldest is the source of k-1 picks.
type ExactDiffMatch struct {
	workers int
}

// NewExactDiffMatch creates the exact diff method. workers bounds the number
// of concurrent fingerprint computations; values below one mean unbounded.
func NewExactDiffMatch(workers int) *ExactDiffMatch {
	return &ExactDiffMatch{workers: workers}
}

// Name implements domain.SearchMethod.
func (e *ExactDiffMatch) Name() string {
	return ExactDiffMatchName
}

// Find implements domain.SearchMethod.
func (e *ExactDiffMatch) Find(ctx context.Context, repo *domain.Repository) (*domain.Findings, error) {
	eligible, skipped := patchCandidates(repo.Commits)

	fingerprints := make([]domain.PatchFingerprint, len(eligible))
	g, gctx := errgroup.WithContext(ctx)
	if e.workers > 0 {
		g.SetLimit(e.workers)
	}
	for i, c := range eligible {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fingerprints[i] = similarity.Fingerprint(c.Patch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	groups := make(map[domain.PatchFingerprint][]domain.Commit)
	for i, fp := range fingerprints {
		groups[fp] = append(groups[fp], eligible[i])
	}

	findings := &domain.Findings{Skipped: skipped}
	for _, members := range groups {
		for _, pick := range similarity.ResolveCluster(members) {
			findings.Picks = append(findings.Picks, domain.Finding{CherryPick: pick, Similarity: 1})
		}
	}
	sortFindings(findings.Picks)
	return findings, nil
}
