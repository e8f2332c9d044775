package domain

import (
	"context"
	"sort"
	"time"
)

// Commit is a single commit as enumerated by a repository adapter.
// Values are treated as read-only once constructed; search methods borrow them
// for the duration of a run.
type Commit struct {
	// ID is the full hex object hash of the commit.
	ID string `json:"id" yaml:"id"`

	// ParentIDs holds the hashes of all parents in git order.
	ParentIDs []string `json:"parent_ids" yaml:"parent_ids"`

	// Author is the author identity in "Name <email>" form.
	Author string `json:"author" yaml:"author"`

	// Committer is the committer identity in "Name <email>" form.
	Committer string `json:"committer" yaml:"committer"`

	// Time is the committer timestamp. It orders sources before targets.
	Time time.Time `json:"time" yaml:"time"`

	// Message is the full commit message.
	Message string `json:"message" yaml:"message"`

	// Patch is the change against the first parent. Empty for merges and roots.
	Patch Patch `json:"-" yaml:"-"`

	// PatchErr is set when the repository adapter failed to compute the patch.
	PatchErr error `json:"-" yaml:"-"`
}

// HasSingleParent reports whether the commit has exactly one parent.
// Merges and root commits carry no single well-defined patch.
func (c Commit) HasSingleParent() bool {
	return len(c.ParentIDs) == 1
}

// Before reports whether c sorts before other in source/target order:
// older first, ties broken lexicographically by ID.
func (c Commit) Before(other Commit) bool {
	if !c.Time.Equal(other.Time) {
		return c.Time.Before(other.Time)
	}
	return c.ID < other.ID
}

// SortCommits orders commits oldest first with ID as the tie-break.
func SortCommits(commits []Commit) {
	sort.SliceStable(commits, func(i, j int) bool {
		return commits[i].Before(commits[j])
	})
}

// PatchFingerprint is a strong hash of a patch text.
type PatchFingerprint [32]byte

// CherrySource identifies the earlier commit of a cherry pick.
type CherrySource struct {
	Commit Commit `json:"commit" yaml:"commit"`
}

// CherryTarget identifies the later commit of a cherry pick.
type CherryTarget struct {
	Commit Commit `json:"commit" yaml:"commit"`
}

// PairKey identifies a cherry pick by its commit identifiers.
type PairKey struct {
	SourceID string
	TargetID string
}

// String renders the key as "source..target".
func (k PairKey) String() string {
	return k.SourceID + ".." + k.TargetID
}

// CherryPick is an ordered (source, target) pair of commits carrying the same change.
type CherryPick struct {
	Source CherrySource `json:"source" yaml:"source"`
	Target CherryTarget `json:"target" yaml:"target"`
}

// NewCherryPick orders two commits by timestamp: the older commit becomes the source.
// Commits with identical timestamps are ordered lexicographically by ID.
func NewCherryPick(a, b Commit) CherryPick {
	if b.Before(a) {
		a, b = b, a
	}
	return CherryPick{
		Source: CherrySource{Commit: a},
		Target: CherryTarget{Commit: b},
	}
}

// NewCherryPickWithRoles builds a pair whose roles are already known,
// e.g. from a provenance marker in the target's message.
func NewCherryPickWithRoles(source, target Commit) CherryPick {
	return CherryPick{
		Source: CherrySource{Commit: source},
		Target: CherryTarget{Commit: target},
	}
}

// Key returns the identity of the pair.
func (c CherryPick) Key() PairKey {
	return PairKey{SourceID: c.Source.Commit.ID, TargetID: c.Target.Commit.ID}
}

// Equal reports whether both picks reference the same commit pair.
func (c CherryPick) Equal(other CherryPick) bool {
	return c.Key() == other.Key()
}

// less orders picks by source time, source ID, then target ID.
func (c CherryPick) less(other CherryPick) bool {
	if !c.Source.Commit.Time.Equal(other.Source.Commit.Time) {
		return c.Source.Commit.Time.Before(other.Source.Commit.Time)
	}
	if c.Source.Commit.ID != other.Source.Commit.ID {
		return c.Source.Commit.ID < other.Source.Commit.ID
	}
	return c.Target.Commit.ID < other.Target.Commit.ID
}

// CherryPickSet is a set of cherry picks keyed by their commit pair.
// The zero value is not usable; create one with NewCherryPickSet.
type CherryPickSet struct {
	picks map[PairKey]CherryPick
}

// NewCherryPickSet creates an empty set.
func NewCherryPickSet() *CherryPickSet {
	return &CherryPickSet{picks: make(map[PairKey]CherryPick)}
}

// Add inserts the pick and reports whether it was not present before.
func (s *CherryPickSet) Add(pick CherryPick) bool {
	key := pick.Key()
	if _, ok := s.picks[key]; ok {
		return false
	}
	s.picks[key] = pick
	return true
}

// Contains reports whether a pick with the same key is present.
func (s *CherryPickSet) Contains(pick CherryPick) bool {
	_, ok := s.picks[pick.Key()]
	return ok
}

// Len returns the number of picks in the set.
func (s *CherryPickSet) Len() int {
	return len(s.picks)
}

// Sorted returns the picks in deterministic order.
func (s *CherryPickSet) Sorted() []CherryPick {
	out := make([]CherryPick, 0, len(s.picks))
	for _, p := range s.picks {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

// SearchResult is a cherry pick annotated with the method that discovered it.
type SearchResult struct {
	// Method is the name of the search method that found the pair.
	Method string `json:"search_method" yaml:"search_method"`

	// Repository is the location of the first repository the pair was found in.
	Repository string `json:"repository" yaml:"repository"`

	// Similarity is the estimated similarity of the pair's patches:
	// 1 for exact matches, 0 when the pair was derived from message metadata.
	Similarity float64 `json:"similarity" yaml:"similarity"`

	// CherryPick is the resolved (source, target) pair.
	CherryPick CherryPick `json:"cherry_and_target" yaml:"cherry_and_target"`
}

// SortResults orders results by method, then by pair.
func SortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Method != results[j].Method {
			return results[i].Method < results[j].Method
		}
		return results[i].CherryPick.less(results[j].CherryPick)
	})
}

// Agreement groups results by commit pair and lists the methods that reported each pair.
// Method names are sorted.
func Agreement(results []SearchResult) map[PairKey][]string {
	seen := make(map[PairKey]map[string]struct{})
	for _, r := range results {
		key := r.CherryPick.Key()
		if seen[key] == nil {
			seen[key] = make(map[string]struct{})
		}
		seen[key][r.Method] = struct{}{}
	}

	agreement := make(map[PairKey][]string, len(seen))
	for key, methods := range seen {
		names := make([]string, 0, len(methods))
		for m := range methods {
			names = append(names, m)
		}
		sort.Strings(names)
		agreement[key] = names
	}
	return agreement
}

// Repository is a materialized, commit-enumerable repository.
type Repository struct {
	// Name is the path or URL the repository was loaded from.
	Name string

	// Commits holds every enumerated commit, including merges and roots.
	Commits []Commit
}

// Location returns the repository name.
func (r *Repository) Location() string {
	return r.Name
}

// Load returns the repository itself, so a materialized repository can be
// handed to the harvester directly.
func (r *Repository) Load(_ context.Context) (*Repository, error) {
	return r, nil
}

// SkippedCommit records a commit a search method could not consider.
type SkippedCommit struct {
	CommitID string
	Reason   string
}

// UnresolvedReference records a provenance marker whose source is not enumerated.
type UnresolvedReference struct {
	// TargetID is the commit whose message carried the marker.
	TargetID string

	// SourceRef is the (possibly abbreviated) hash named by the marker.
	SourceRef string
}

// Finding is one discovered pair with an optional similarity score.
type Finding struct {
	CherryPick CherryPick
	Similarity float64
}

// Findings is the output of one search method over one repository.
type Findings struct {
	Picks      []Finding
	Skipped    []SkippedCommit
	Unresolved []UnresolvedReference
}

// CherryPicks returns only the pairs of the findings.
func (f *Findings) CherryPicks() []CherryPick {
	out := make([]CherryPick, 0, len(f.Picks))
	for _, p := range f.Picks {
		out = append(out, p.CherryPick)
	}
	return out
}

// RepositoryFailure records a repository that could not be searched.
type RepositoryFailure struct {
	Repository string `json:"repository" yaml:"repository"`
	Method     string `json:"method,omitempty" yaml:"method,omitempty"`
	Error      string `json:"error" yaml:"error"`
}

// HarvestOutput is the combined output of a harvest over several repositories.
type HarvestOutput struct {
	// Results holds the deduplicated results of every method.
	Results []SearchResult `json:"results" yaml:"results"`

	// TotalCommits is the number of commits enumerated across loaded repositories.
	TotalCommits int `json:"total_number_of_commits" yaml:"total_number_of_commits"`

	// Failures lists repositories or methods that failed and were skipped.
	Failures []RepositoryFailure `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// RunInfo describes a harvest run when results are persisted.
type RunInfo struct {
	// Name identifies the run, usually the seed repository.
	Name string `json:"repo_name" yaml:"repo_name"`

	// Repositories lists every repository location searched.
	Repositories []string `json:"repositories" yaml:"repositories"`

	// TotalCommits is the number of commits enumerated.
	TotalCommits int `json:"total_number_of_commits" yaml:"total_number_of_commits"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
}

// Default values for the approximate search.
const (
	DefaultNumHashes  = 100
	DefaultBands      = 20
	DefaultRows       = 5
	DefaultThreshold  = 0.7
	DefaultSeed       = 42
	DefaultMaxForks   = 0
	DefaultRebaseTime = time.Minute
)
