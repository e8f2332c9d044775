// Package search implements the cherry-pick search methods.
// Each method implements domain.SearchMethod and works on a single materialized repository.
package search

import (
	"fmt"
	"sort"

	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
)

// Method names stored in every SearchResult.
const (
	MessageScanName    = "MessageScan"
	ExactDiffMatchName = "ExactDiffMatch"
	ApproximateName    = "TraditionalLSH"
)

// Skip reasons reported for commits a patch-based method could not consider.
const (
	ReasonPatchUnavailable = "patch unavailable"
	ReasonEmptyTokenSet    = "empty token set"
)

// uniqueCommits drops repeated IDs, keeping the first occurrence.
// The same commit is reachable from several branches.
func uniqueCommits(commits []domain.Commit) []domain.Commit {
	seen := make(map[string]struct{}, len(commits))
	out := make([]domain.Commit, 0, len(commits))
	for _, c := range commits {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// patchCandidates selects the commits that carry a usable patch.
// Merges, roots and commits with empty patches are not eligible and are left out silently;
// commits whose patch could not be computed are returned as skipped.
func patchCandidates(commits []domain.Commit) ([]domain.Commit, []domain.SkippedCommit) {
	var eligible []domain.Commit
	var skipped []domain.SkippedCommit
	for _, c := range uniqueCommits(commits) {
		if !c.HasSingleParent() {
			continue
		}
		if c.PatchErr != nil {
			skipped = append(skipped, domain.SkippedCommit{
				CommitID: c.ID,
				Reason:   fmt.Sprintf("%s: %v", ReasonPatchUnavailable, c.PatchErr),
			})
			continue
		}
		if c.Patch.IsEmpty() {
			continue
		}
		eligible = append(eligible, c)
	}
	return eligible, skipped
}

// sortFindings orders picks by source time, source ID, then target ID.
func sortFindings(findings []domain.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i].CherryPick, findings[j].CherryPick
		if !a.Source.Commit.Time.Equal(b.Source.Commit.Time) {
			return a.Source.Commit.Time.Before(b.Source.Commit.Time)
		}
		if a.Source.Commit.ID != b.Source.Commit.ID {
			return a.Source.Commit.ID < b.Source.Commit.ID
		}
		return a.Target.Commit.ID < b.Target.Commit.ID
	})
}
