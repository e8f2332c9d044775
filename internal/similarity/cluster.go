package similarity

import (
	"sort"

	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
)

// Components groups IDs connected by pairs using union-find.
// Each component has at least two members; members are sorted and
// components are ordered by their first member.
func Components(pairs []Pair) [][]string {
	parent := make(map[string]string)

	var find func(string) string
	find = func(x string) string {
		p, ok := parent[x]
		if !ok {
			parent[x] = x
			return x
		}
		if p != x {
			parent[x] = find(p)
		}
		return parent[x]
	}

	union := func(x, y string) {
		px, py := find(x), find(y)
		if px == py {
			return
		}
		if px < py {
			parent[py] = px
		} else {
			parent[px] = py
		}
	}

	for _, p := range pairs {
		union(p.A, p.B)
	}

	groups := make(map[string][]string)
	for id := range parent {
		root := find(id)
		groups[root] = append(groups[root], id)
	}

	out := make([][]string, 0, len(groups))
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		out = append(out, members)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// ResolveCluster turns a group of commits carrying the same change into
// cherry picks: the oldest commit (ties broken by ID) is the source and
// every other member is a target. A group of k commits yields k-1 picks.
func ResolveCluster(members []domain.Commit) []domain.CherryPick {
	if len(members) < 2 {
		return nil
	}

	sorted := make([]domain.Commit, len(members))
	copy(sorted, members)
	domain.SortCommits(sorted)

	source := sorted[0]
	picks := make([]domain.CherryPick, 0, len(sorted)-1)
	for _, target := range sorted[1:] {
		picks = append(picks, domain.NewCherryPickWithRoles(source, target))
	}
	return picks
}
