// Package git provides adapters for reading Git repositories.
package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MyCarrier-DevOps/goLibMyCarrier/logger"

	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
)

// testLogger is a minimal logger for testing that doesn't output anything.
type testLogger struct{}

func (l *testLogger) Info(_ context.Context, _ string, _ map[string]interface{})           {}
func (l *testLogger) Debug(_ context.Context, _ string, _ map[string]interface{})          {}
func (l *testLogger) Warn(_ context.Context, _ string, _ map[string]interface{})           {}
func (l *testLogger) Warning(_ context.Context, _ string, _ map[string]interface{})        {}
func (l *testLogger) Error(_ context.Context, _ string, _ error, _ map[string]interface{}) {}
func (l *testLogger) WithFields(_ map[string]interface{}) logger.Logger                    { return l }

// requireGit skips the test when the git binary is not available.
func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

// setupTestRepo creates a temporary git repository with one commit.
func setupTestRepo(t *testing.T) string {
	t.Helper()
	requireGit(t)

	dir := t.TempDir()
	runGit(t, dir, "init")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "Test User")
	runGit(t, dir, "config", "commit.gpgsign", "false")

	writeFile(t, dir, "a.txt", "line1\nline2\nline3\n")
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "Initial commit")

	return dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// runGit executes a git command in the given directory.
func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\nOutput: %s", args, err, output)
	}
}

// getGitOutput runs a git command and returns its trimmed stdout.
func getGitOutput(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	output, err := cmd.Output()
	require.NoError(t, err, "git %v failed", args)
	return strings.TrimSpace(string(output))
}

func commitByID(t *testing.T, repo *domain.Repository, id string) domain.Commit {
	t.Helper()
	for _, c := range repo.Commits {
		if c.ID == id {
			return c
		}
	}
	t.Fatalf("commit %s not enumerated", id)
	return domain.Commit{}
}

func TestOpen_NotARepository(t *testing.T) {
	repo, err := Open(t.TempDir(), &testLogger{})

	require.Error(t, err)
	assert.Nil(t, repo)
	assert.ErrorIs(t, err, domain.ErrRepositoryNotFound)
}

func TestGoGitRepository_Load_CherryPick(t *testing.T) {
	repoPath := setupTestRepo(t)
	defaultBranch := getGitOutput(t, repoPath, "branch", "--show-current")
	root := getGitOutput(t, repoPath, "rev-parse", "HEAD")

	// Feature branch with the change that gets cherry-picked
	runGit(t, repoPath, "checkout", "-b", "feature")
	writeFile(t, repoPath, "a.txt", "line1\nline2\nline3\nfeature\n")
	runGit(t, repoPath, "commit", "-am", "Add feature")
	feature := getGitOutput(t, repoPath, "rev-parse", "HEAD")

	// Unrelated work on the default branch, then the cherry pick
	runGit(t, repoPath, "checkout", defaultBranch)
	writeFile(t, repoPath, "b.txt", "other\n")
	runGit(t, repoPath, "add", ".")
	runGit(t, repoPath, "commit", "-m", "Other work")
	other := getGitOutput(t, repoPath, "rev-parse", "HEAD")
	runGit(t, repoPath, "cherry-pick", "-x", feature)
	picked := getGitOutput(t, repoPath, "rev-parse", "HEAD")

	// Merge back into feature to get a merge commit
	runGit(t, repoPath, "checkout", "feature")
	runGit(t, repoPath, "merge", "--no-ff", "-m", "Merge default", defaultBranch)
	merge := getGitOutput(t, repoPath, "rev-parse", "HEAD")

	repo, err := Open(repoPath, &testLogger{})
	require.NoError(t, err)

	// Act
	loaded, err := repo.Load(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, repoPath, loaded.Name)
	assert.Len(t, loaded.Commits, 5, "every commit must be enumerated exactly once")

	rootCommit := commitByID(t, loaded, root)
	assert.Empty(t, rootCommit.ParentIDs)
	assert.Empty(t, rootCommit.Patch.Text)

	mergeCommit := commitByID(t, loaded, merge)
	assert.Len(t, mergeCommit.ParentIDs, 2)
	assert.Empty(t, mergeCommit.Patch.Text)
	assert.NoError(t, mergeCommit.PatchErr)

	featureCommit := commitByID(t, loaded, feature)
	pickedCommit := commitByID(t, loaded, picked)
	assert.Equal(t,
		"diff --git a/a.txt b/a.txt\n--- a/a.txt\n+++ b/a.txt\n@@\n line1\n line2\n line3\n+feature\n",
		featureCommit.Patch.Text)
	assert.Equal(t, featureCommit.Patch.Text, pickedCommit.Patch.Text)
	assert.Contains(t, pickedCommit.Message, "(cherry picked from commit "+feature+")")
	assert.Equal(t, "Test User <test@example.com>", pickedCommit.Author)
	assert.Equal(t, []string{other}, pickedCommit.ParentIDs)
}

func TestGoGitRepository_Load_BinaryFilesSkipped(t *testing.T) {
	repoPath := setupTestRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(repoPath, "blob.bin"), []byte{0, 1, 2, 0, 3}, 0o644))
	writeFile(t, repoPath, "c.txt", "text\n")
	runGit(t, repoPath, "add", ".")
	runGit(t, repoPath, "commit", "-m", "Add binary and text")
	head := getGitOutput(t, repoPath, "rev-parse", "HEAD")

	repo, err := Open(repoPath, &testLogger{})
	require.NoError(t, err)

	// Act
	loaded, err := repo.Load(context.Background())

	// Assert
	require.NoError(t, err)
	c := commitByID(t, loaded, head)
	assert.NotContains(t, c.Patch.Text, "blob.bin")
	assert.Contains(t, c.Patch.Text, "diff --git a/c.txt b/c.txt")
}

func TestGoGitRepository_Load_ContextCancellation(t *testing.T) {
	repoPath := setupTestRepo(t)
	repo, err := Open(repoPath, &testLogger{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Act
	loaded, err := repo.Load(ctx)

	// Assert
	require.Error(t, err)
	assert.Nil(t, loaded)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoader_LocalPath(t *testing.T) {
	repoPath := setupTestRepo(t)
	loader := NewLoader(repoPath, "", "", &testLogger{})

	// Act
	loaded, err := loader.Load(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, repoPath, loader.Location())
	assert.Len(t, loaded.Commits, 1)
}

func TestLoader_MissingPath(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "missing"), "", "", &testLogger{})

	_, err := loader.Load(context.Background())

	assert.ErrorIs(t, err, domain.ErrRepositoryNotFound)
}

func TestClone_FromLocalRemote(t *testing.T) {
	repoPath := setupTestRepo(t)
	runGit(t, repoPath, "checkout", "-b", "second")
	writeFile(t, repoPath, "a.txt", "changed\n")
	runGit(t, repoPath, "commit", "-am", "Change on second")

	// Act
	repo, err := Clone(context.Background(), repoPath, t.TempDir(), "", &testLogger{})
	require.NoError(t, err)
	loaded, err := repo.Load(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Len(t, loaded.Commits, 2, "commits of all remote branches are enumerated")
}
