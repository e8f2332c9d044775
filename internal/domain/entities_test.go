package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCherryPick_OrdersByTime(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	older := Commit{ID: "ffff", Time: ts}
	newer := Commit{ID: "0000", Time: ts.Add(time.Second)}

	tests := []struct {
		name string
		a, b Commit
	}{
		{"older first", older, newer},
		{"newer first", newer, older},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			pick := NewCherryPick(tt.a, tt.b)

			// Assert
			assert.Equal(t, "ffff", pick.Source.Commit.ID)
			assert.Equal(t, "0000", pick.Target.Commit.ID)
		})
	}
}

func TestNewCherryPick_TieBrokenByID(t *testing.T) {
	// Arrange
	ts := time.Unix(1000, 0)
	a := Commit{ID: "bbb", Time: ts}
	b := Commit{ID: "aaa", Time: ts}

	// Act
	p1 := NewCherryPick(a, b)
	p2 := NewCherryPick(b, a)

	// Assert
	assert.Equal(t, PairKey{SourceID: "aaa", TargetID: "bbb"}, p1.Key())
	assert.True(t, p1.Equal(p2))
	assert.Equal(t, "aaa..bbb", p1.Key().String())
}

func TestCherryPickSet(t *testing.T) {
	// Arrange
	ts := time.Unix(0, 0)
	a := Commit{ID: "a", Time: ts}
	b := Commit{ID: "b", Time: ts.Add(time.Minute)}
	c := Commit{ID: "c", Time: ts.Add(2 * time.Minute)}
	set := NewCherryPickSet()

	// Act
	added := []bool{
		set.Add(NewCherryPick(a, c)),
		set.Add(NewCherryPick(a, b)),
		set.Add(NewCherryPick(b, a)),
	}

	// Assert
	assert.Equal(t, []bool{true, true, false}, added)
	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Contains(NewCherryPick(c, a)))
	sorted := set.Sorted()
	require.Len(t, sorted, 2)
	assert.Equal(t, "b", sorted[0].Target.Commit.ID)
	assert.Equal(t, "c", sorted[1].Target.Commit.ID)
}

func TestPatch_IsEmpty(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", true},
		{"headers only", "diff --git a/x b/x\n--- a/x\n+++ b/x\n", true},
		{"context only", "diff --git a/x b/x\n--- a/x\n+++ b/x\n@@\n same\n", true},
		{"addition", "diff --git a/x b/x\n--- a/x\n+++ b/x\n@@\n+new\n", false},
		{"removal", "diff --git a/x b/x\n--- a/x\n+++ b/x\n@@\n-old\n", false},
		{"plain headers only", "--- a/main.go\n+++ b/main.go\n", true},
		{"plain diff with change", "--- a/main.go\n+++ b/main.go\n@@ -1 +1 @@\n-old\n+new\n", false},
		{"binary note only", "diff --git a/img b/img\nBinary files a/img and b/img differ\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Patch{Text: tt.text}.IsEmpty())
		})
	}
}

func TestPatch_ChangedLines(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "bare hunk markers",
			text: "diff --git a/x b/x\n--- a/x\n+++ b/x\n@@\n ctx\n-old\n+new\n\\ No newline at end of file\n",
			want: []string{"-old", "+new"},
		},
		{
			name: "counted hunks without diff line",
			text: "--- a/x\n+++ b/x\n@@ -1,3 +1,3 @@\n a\n-b\n+c\n d\n--- a/y\n+++ b/y\n@@ -0,0 +1 @@\n+e\n",
			want: []string{"-b", "+c", "+e"},
		},
		{
			name: "removed line starting with dashes inside a counted hunk",
			text: "--- a/x.lua\n+++ b/x.lua\n@@ -1 +1 @@\n--- comment\n+++ i\n",
			want: []string{"--- comment", "+++ i"},
		},
		{
			name: "headers only",
			text: "--- a/x\n+++ b/x\n",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Patch{Text: tt.text}.ChangedLines())
		})
	}
}

func TestCommit_HasSingleParent(t *testing.T) {
	assert.False(t, Commit{}.HasSingleParent())
	assert.True(t, Commit{ParentIDs: []string{"p"}}.HasSingleParent())
	assert.False(t, Commit{ParentIDs: []string{"p", "q"}}.HasSingleParent())
}

func TestSortResults(t *testing.T) {
	// Arrange
	ts := time.Unix(100, 0)
	a := Commit{ID: "a", Time: ts}
	b := Commit{ID: "b", Time: ts.Add(time.Hour)}
	c := Commit{ID: "c", Time: ts.Add(-time.Hour)}
	results := []SearchResult{
		{Method: "TraditionalLSH", CherryPick: NewCherryPick(a, b)},
		{Method: "ExactDiffMatch", CherryPick: NewCherryPick(a, b)},
		{Method: "ExactDiffMatch", CherryPick: NewCherryPick(c, b)},
	}

	// Act
	SortResults(results)

	// Assert
	assert.Equal(t, "ExactDiffMatch", results[0].Method)
	assert.Equal(t, "c", results[0].CherryPick.Source.Commit.ID)
	assert.Equal(t, "ExactDiffMatch", results[1].Method)
	assert.Equal(t, "a", results[1].CherryPick.Source.Commit.ID)
	assert.Equal(t, "TraditionalLSH", results[2].Method)
}

func TestAgreement(t *testing.T) {
	// Arrange
	ts := time.Unix(100, 0)
	a := Commit{ID: "a", Time: ts}
	b := Commit{ID: "b", Time: ts.Add(time.Hour)}
	c := Commit{ID: "c", Time: ts.Add(2 * time.Hour)}
	results := []SearchResult{
		{Method: "TraditionalLSH", CherryPick: NewCherryPick(a, b)},
		{Method: "ExactDiffMatch", CherryPick: NewCherryPick(a, b)},
		{Method: "MessageScan", CherryPick: NewCherryPick(b, c)},
	}

	// Act
	agreement := Agreement(results)

	// Assert
	assert.Equal(t, map[PairKey][]string{
		{SourceID: "a", TargetID: "b"}: {"ExactDiffMatch", "TraditionalLSH"},
		{SourceID: "b", TargetID: "c"}: {"MessageScan"},
	}, agreement)
}

func TestRepository_IsLoader(t *testing.T) {
	// Arrange
	repo := &Repository{Name: "local", Commits: []Commit{{ID: "a"}}}
	var loader RepositoryLoader = repo

	// Act
	loaded, err := loader.Load(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Same(t, repo, loaded)
	assert.Equal(t, "local", loader.Location())
}

func TestFindings_CherryPicks(t *testing.T) {
	pick := NewCherryPick(Commit{ID: "a"}, Commit{ID: "b", Time: time.Unix(1, 0)})
	f := &Findings{Picks: []Finding{{CherryPick: pick, Similarity: 0.9}}}

	assert.Equal(t, []CherryPick{pick}, f.CherryPicks())
}
