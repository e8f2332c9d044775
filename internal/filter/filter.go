// Package filter narrows harvest results with heuristics that separate
// cherry-picks from history rewritten by rebases.
package filter

import (
	"sort"
	"strings"
	"time"

	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
)

// Marker is the text git cherry-pick -x appends to a message.
const Marker = "cherry picked from commit"

type resultKey struct {
	method string
	pair   domain.PairKey
}

func keyOf(r domain.SearchResult) resultKey {
	return resultKey{method: r.Method, pair: r.CherryPick.Key()}
}

// MessageFilter keeps results whose target message carries the cherry-pick marker.
type MessageFilter struct{}

// Filter implements domain.ResultFilter.
func (MessageFilter) Filter(results []domain.SearchResult) []domain.SearchResult {
	var out []domain.SearchResult
	for _, r := range results {
		if strings.Contains(r.CherryPick.Target.Commit.Message, Marker) {
			out = append(out, r)
		}
	}
	return out
}

// TimeFilter drops results whose target was committed within Threshold of the
// target of another result from the same method. A rebase rewrites a run of
// commits in quick succession, while cherry-picks tend to be isolated.
type TimeFilter struct {
	Threshold time.Duration
}

// NewTimeFilter creates a TimeFilter. A non-positive threshold uses
// domain.DefaultRebaseTime.
func NewTimeFilter(threshold time.Duration) TimeFilter {
	if threshold <= 0 {
		threshold = domain.DefaultRebaseTime
	}
	return TimeFilter{Threshold: threshold}
}

// Filter implements domain.ResultFilter.
func (f TimeFilter) Filter(results []domain.SearchResult) []domain.SearchResult {
	byMethod := map[string][]int{}
	for i, r := range results {
		byMethod[r.Method] = append(byMethod[r.Method], i)
	}

	rebase := make([]bool, len(results))
	for _, idx := range byMethod {
		sort.SliceStable(idx, func(a, b int) bool {
			ta := results[idx[a]].CherryPick.Target.Commit
			tb := results[idx[b]].CherryPick.Target.Commit
			return ta.Before(tb)
		})
		for k := 1; k < len(idx); k++ {
			prev := results[idx[k-1]].CherryPick.Target.Commit.Time
			cur := results[idx[k]].CherryPick.Target.Commit.Time
			if cur.Sub(prev) < f.Threshold {
				rebase[idx[k-1]] = true
				rebase[idx[k]] = true
			}
		}
	}

	var out []domain.SearchResult
	for i, r := range results {
		if !rebase[i] {
			out = append(out, r)
		}
	}
	return out
}

// OrFilter keeps every result kept by at least one of its filters, in input order.
type OrFilter struct {
	Filters []domain.ResultFilter
}

// Or combines filters into an OrFilter.
func Or(filters ...domain.ResultFilter) OrFilter {
	return OrFilter{Filters: filters}
}

// Filter implements domain.ResultFilter.
func (f OrFilter) Filter(results []domain.SearchResult) []domain.SearchResult {
	kept := map[resultKey]bool{}
	for _, filter := range f.Filters {
		for _, r := range filter.Filter(results) {
			kept[keyOf(r)] = true
		}
	}

	var out []domain.SearchResult
	for _, r := range results {
		if kept[keyOf(r)] {
			out = append(out, r)
		}
	}
	return out
}

// ExcludeRebases is the default rebase heuristic: keep results that either carry
// the cherry-pick marker or are not part of a burst of commits.
func ExcludeRebases(threshold time.Duration) domain.ResultFilter {
	return Or(MessageFilter{}, NewTimeFilter(threshold))
}
