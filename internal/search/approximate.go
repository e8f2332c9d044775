package search

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
	"github.com/MyCarrier-DevOps/cherry-harvest/internal/similarity"
)

// ApproximateConfig holds the precision/recall settings of the LSH search.
type ApproximateConfig struct {
	// NumHashes is the signature length. It must equal Bands*Rows.
	NumHashes int `json:"num_hashes"`

	// Bands is the number of signature bands.
	Bands int `json:"bands"`

	// Rows is the number of signature values per band.
	Rows int `json:"rows"`

	// Threshold is the minimum estimated Jaccard similarity of a reported pair.
	Threshold float64 `json:"threshold"`

	// Seed selects the hash family. Equal seeds give reproducible results.
	Seed uint64 `json:"seed"`

	// Workers bounds parallelism; values below one mean unbounded.
	Workers int `json:"workers"`
}

// DefaultApproximateConfig returns 100 hashes in 20 bands of 5 rows with a 0.7 threshold.
func DefaultApproximateConfig() ApproximateConfig {
	return ApproximateConfig{
		NumHashes: domain.DefaultNumHashes,
		Bands:     domain.DefaultBands,
		Rows:      domain.DefaultRows,
		Threshold: domain.DefaultThreshold,
		Seed:      domain.DefaultSeed,
	}
}

// Validate checks that the configuration can be used.
func (c ApproximateConfig) Validate() error {
	if c.Bands <= 0 || c.Rows <= 0 {
		return fmt.Errorf("%w: bands (%d) and rows (%d) must be positive",
			domain.ErrInvalidConfig, c.Bands, c.Rows)
	}
	if c.NumHashes != c.Bands*c.Rows {
		return fmt.Errorf("%w: num_hashes (%d) must equal bands*rows (%d)",
			domain.ErrInvalidConfig, c.NumHashes, c.Bands*c.Rows)
	}
	if !(c.Threshold > 0 && c.Threshold <= 1) {
		return fmt.Errorf("%w: threshold must be in (0, 1], got %v",
			domain.ErrInvalidConfig, c.Threshold)
	}
	return nil
}

// ApproximateMatch pairs commits whose patches are similar but not necessarily identical.
//
// Patches are tokenized and signed with MinHash, signatures are banded into an
// LSH index and candidate pairs are verified against the threshold. Verified
// pairs are merged into connected components, each of which is resolved with
// the oldest commit as the source.
type ApproximateMatch struct {
	cfg    ApproximateConfig
	hasher *similarity.Hasher
}

// NewApproximateMatch validates cfg and creates the method.
func NewApproximateMatch(cfg ApproximateConfig) (*ApproximateMatch, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	hasher, err := similarity.NewHasher(cfg.NumHashes, cfg.Seed)
	if err != nil {
		return nil, err
	}
	return &ApproximateMatch{cfg: cfg, hasher: hasher}, nil
}

// Name implements domain.SearchMethod.
func (a *ApproximateMatch) Name() string {
	return ApproximateName
}

// Config returns the configuration of the method.
func (a *ApproximateMatch) Config() ApproximateConfig {
	return a.cfg
}

// Find implements domain.SearchMethod.
func (a *ApproximateMatch) Find(ctx context.Context, repo *domain.Repository) (*domain.Findings, error) {
	eligible, skipped := patchCandidates(repo.Commits)
	findings := &domain.Findings{Skipped: skipped}

	signatures, err := a.sign(ctx, eligible)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Commit, len(eligible))
	sigByID := make(map[string]similarity.Signature, len(eligible))
	for i, c := range eligible {
		if signatures[i] == nil {
			findings.Skipped = append(findings.Skipped, domain.SkippedCommit{
				CommitID: c.ID,
				Reason:   ReasonEmptyTokenSet,
			})
			continue
		}
		byID[c.ID] = c
		sigByID[c.ID] = signatures[i]
	}

	idx, err := similarity.BuildIndex(ctx, sigByID, a.cfg.Bands, a.cfg.Rows, a.cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to build LSH index: %w", err)
	}

	verified, err := similarity.Verify(ctx, idx, sigByID, a.cfg.Threshold, a.cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to verify candidates: %w", err)
	}

	pairs := make([]similarity.Pair, len(verified))
	for i, v := range verified {
		pairs[i] = v.Pair
	}

	for _, component := range similarity.Components(pairs) {
		members := make([]domain.Commit, len(component))
		for i, id := range component {
			members[i] = byID[id]
		}
		for _, pick := range similarity.ResolveCluster(members) {
			sim, err := similarity.EstimateJaccard(
				sigByID[pick.Source.Commit.ID],
				sigByID[pick.Target.Commit.ID],
			)
			if err != nil {
				return nil, err
			}
			findings.Picks = append(findings.Picks, domain.Finding{CherryPick: pick, Similarity: sim})
		}
	}

	sortFindings(findings.Picks)
	return findings, nil
}

// sign tokenizes and signs every commit in parallel. A nil entry marks a
// commit whose patch produced no tokens.
func (a *ApproximateMatch) sign(ctx context.Context, commits []domain.Commit) ([]similarity.Signature, error) {
	signatures := make([]similarity.Signature, len(commits))

	g, gctx := errgroup.WithContext(ctx)
	if a.cfg.Workers > 0 {
		g.SetLimit(a.cfg.Workers)
	}
	for i, c := range commits {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			shingles := similarity.Tokenize(c.Patch.Text).Shingles()
			if len(shingles) == 0 {
				return nil
			}
			sig, err := a.hasher.Sign(shingles)
			if err != nil {
				return fmt.Errorf("failed to sign commit %s: %w", c.ID, err)
			}
			signatures[i] = sig
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return signatures, nil
}
