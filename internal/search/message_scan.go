package search

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
)

// cherryMarker matches the line git adds on `git cherry-pick -x`.
var cherryMarker = regexp.MustCompile(`\(cherry picked from commit ([0-9a-fA-F]{4,64})\)`)

// MessageScan finds cherry picks from the provenance marker git writes into
// the message of a commit created with `git cherry-pick -x`.
//
// The commit carrying the marker is the target and the referenced commit is
// the source, regardless of timestamps. Markers naming a commit that is not
// part of the repository, or an abbreviated hash matching several commits,
// are reported as unresolved.
type MessageScan struct{}

// NewMessageScan creates the message scan method.
func NewMessageScan() *MessageScan {
	return &MessageScan{}
}

// Name implements domain.SearchMethod.
func (m *MessageScan) Name() string {
	return MessageScanName
}

// Find implements domain.SearchMethod.
func (m *MessageScan) Find(ctx context.Context, repo *domain.Repository) (*domain.Findings, error) {
	commits := uniqueCommits(repo.Commits)

	byID := make(map[string]domain.Commit, len(commits))
	ids := make([]string, 0, len(commits))
	for _, c := range commits {
		id := strings.ToLower(c.ID)
		byID[id] = c
		ids = append(ids, id)
	}
	sort.Strings(ids)

	findings := &domain.Findings{}
	picks := domain.NewCherryPickSet()

	for _, target := range commits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, ref := range References(target.Message) {
			sourceID, ok := resolvePrefix(ids, strings.ToLower(ref))
			if !ok {
				findings.Unresolved = append(findings.Unresolved, domain.UnresolvedReference{
					TargetID:  target.ID,
					SourceRef: ref,
				})
				continue
			}
			source := byID[sourceID]
			if source.ID == target.ID {
				continue
			}
			picks.Add(domain.NewCherryPickWithRoles(source, target))
		}
	}

	for _, pick := range picks.Sorted() {
		findings.Picks = append(findings.Picks, domain.Finding{CherryPick: pick})
	}
	return findings, nil
}

// References returns every hash named by a cherry-pick marker in message, in order of appearance.
func References(message string) []string {
	matches := cherryMarker.FindAllStringSubmatch(message, -1)
	if len(matches) == 0 {
		return nil
	}
	refs := make([]string, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, m[1])
	}
	return refs
}

// resolvePrefix finds the single ID in sorted ids that starts with prefix.
func resolvePrefix(ids []string, prefix string) (string, bool) {
	i := sort.SearchStrings(ids, prefix)
	if i >= len(ids) || !strings.HasPrefix(ids[i], prefix) {
		return "", false
	}
	if i+1 < len(ids) && strings.HasPrefix(ids[i+1], prefix) {
		return "", false
	}
	return ids[i], true
}
