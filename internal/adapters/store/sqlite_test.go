package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleResults() (domain.RunInfo, []domain.SearchResult) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c1 := domain.Commit{ID: "c1", ParentIDs: []string{"p"}, Message: "fix", Time: base}
	c2 := domain.Commit{ID: "c2", ParentIDs: []string{"q"}, Message: "fix (cherry picked from commit c1)", Time: base.Add(time.Hour)}
	c3 := domain.Commit{ID: "c3", ParentIDs: []string{"r"}, Message: "fix", Time: base.Add(2 * time.Hour)}
	run := domain.RunInfo{
		Name:         "owner/repo",
		Repositories: []string{"https://github.com/owner/repo.git", "https://github.com/fork/repo.git"},
		TotalCommits: 3,
		StartedAt:    base,
	}
	results := []domain.SearchResult{
		{Method: "MessageScan", Repository: "https://github.com/owner/repo.git", CherryPick: domain.NewCherryPickWithRoles(c1, c2)},
		{Method: "ExactDiffMatch", Repository: "https://github.com/owner/repo.git", Similarity: 1, CherryPick: domain.NewCherryPick(c1, c2)},
		{Method: "ExactDiffMatch", Repository: "https://github.com/owner/repo.git", Similarity: 1, CherryPick: domain.NewCherryPick(c1, c3)},
	}
	return run, results
}

func TestSQLiteStore_Tracker(t *testing.T) {
	// Arrange
	s := setupTestStore(t)
	ctx := context.Background()

	// Act
	before, err := s.Contains(ctx, "owner/repo")
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, "owner/repo"))
	require.NoError(t, s.Add(ctx, "owner/repo"))
	after, err := s.Contains(ctx, "owner/repo")
	require.NoError(t, err)
	other, err := s.Contains(ctx, "other/repo")
	require.NoError(t, err)

	// Assert
	assert.False(t, before)
	assert.True(t, after)
	assert.False(t, other)
}

func TestSQLiteStore_Save(t *testing.T) {
	// Arrange
	s := setupTestStore(t)
	ctx := context.Background()
	run, results := sampleResults()

	// Act
	err := s.Save(ctx, run, results)

	// Assert
	require.NoError(t, err)

	var runs, totalResults int
	require.NoError(t, s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), MAX(total_results) FROM harvest_runs").Scan(&runs, &totalResults))
	assert.Equal(t, 1, runs)
	assert.Equal(t, 3, totalResults)

	var picks int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cherry_picks").Scan(&picks))
	assert.Equal(t, 3, picks)

	var repos int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM run_repositories").Scan(&repos))
	assert.Equal(t, 2, repos)

	var target, message string
	require.NoError(t, s.db.QueryRowContext(ctx,
		"SELECT target_id, target_message FROM cherry_picks WHERE search_method = 'MessageScan'").
		Scan(&target, &message))
	assert.Equal(t, "c2", target)
	assert.Contains(t, message, "cherry picked from commit c1")
}

func TestSQLiteStore_SaveEmptyRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	run, _ := sampleResults()

	require.NoError(t, s.Save(ctx, run, nil))

	var picks int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cherry_picks").Scan(&picks))
	assert.Zero(t, picks)
}

func TestSQLiteStore_SaveCanceled(t *testing.T) {
	s := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run, results := sampleResults()

	err := s.Save(ctx, run, results)

	assert.Error(t, err)
}

func TestSQLiteStore_FilePersists(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "nested", "harvest.db")
	ctx := context.Background()
	s, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, "owner/repo"))
	require.NoError(t, s.Close())

	// Act
	reopened, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()
	found, err := reopened.Contains(ctx, "owner/repo")

	// Assert
	require.NoError(t, err)
	assert.True(t, found)
}
