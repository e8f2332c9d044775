// Package git provides adapters for reading Git repositories.
// This package implements the domain.RepositoryLoader interface using go-git/v5.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
)

// Logger defines the logging interface for the git adapter.
// This interface enables dependency injection and testability.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
}

// GoGitRepository reads commits and patches from a repository opened with go-git/v5.
type GoGitRepository struct {
	repo     *git.Repository
	location string
	logger   Logger
}

// Open opens the repository at path.
// The path can be either a working directory or a bare repository.
// Returns domain.ErrRepositoryNotFound if the path is not a valid Git repository.
func Open(path string, log Logger) (*GoGitRepository, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRepositoryNotFound, path)
	}

	return &GoGitRepository{
		repo:     repo,
		location: path,
		logger:   log,
	}, nil
}

// Clone clones url as a bare repository into dir.
// token, when set, authenticates HTTPS clones of private repositories.
func Clone(ctx context.Context, url, dir, token string, log Logger) (*GoGitRepository, error) {
	opts := &git.CloneOptions{URL: url}
	if token != "" {
		opts.Auth = &http.BasicAuth{Username: "x-access-token", Password: token}
	}

	log.Debug(ctx, "cloning repository", map[string]interface{}{
		"url": url,
		"dir": dir,
	})

	repo, err := git.PlainCloneContext(ctx, dir, true, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to clone %s: %w", domain.ErrRepositoryLoad, url, err)
	}

	return &GoGitRepository{
		repo:     repo,
		location: url,
		logger:   log,
	}, nil
}

// Location returns the path or URL the repository was opened from.
func (r *GoGitRepository) Location() string {
	return r.location
}

// Load enumerates every commit reachable from a local or remote-tracking
// branch head, each commit once, together with its patch against the first parent.
// A patch that cannot be computed is recorded on the commit instead of failing the load.
func (r *GoGitRepository) Load(ctx context.Context) (*domain.Repository, error) {
	heads, err := r.branchHeads()
	if err != nil {
		return nil, err
	}

	seen := make(map[plumbing.Hash]bool)
	var commits []domain.Commit
	patchFailures := 0

	for _, head := range heads {
		start, err := r.repo.CommitObject(head)
		if err != nil {
			r.logger.Warn(ctx, "skipping branch head that is not a commit", map[string]interface{}{
				"hash":       head.String(),
				"repository": r.location,
			})
			continue
		}

		iter := object.NewCommitPreorderIter(start, seen, nil)
		err = iter.ForEach(func(c *object.Commit) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			seen[c.Hash] = true
			commit := toDomainCommit(c)
			if c.NumParents() == 1 {
				text, perr := renderPatch(ctx, c)
				if perr != nil {
					if ctxErr := ctx.Err(); ctxErr != nil {
						return ctxErr
					}
					commit.PatchErr = fmt.Errorf("%w: %w", domain.ErrPatchUnavailable, perr)
					patchFailures++
				} else {
					commit.Patch = domain.Patch{Text: text}
				}
			}
			commits = append(commits, commit)
			return nil
		})
		iter.Close()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: failed to walk history of %s: %w", domain.ErrRepositoryLoad, r.location, err)
		}
	}

	r.logger.Debug(ctx, "loaded repository", map[string]interface{}{
		"repository":     r.location,
		"branch_heads":   len(heads),
		"commits":        len(commits),
		"patch_failures": patchFailures,
	})

	return &domain.Repository{Name: r.location, Commits: commits}, nil
}

// branchHeads returns the distinct targets of all local and remote-tracking branches.
// Symbolic references such as HEAD and origin/HEAD are skipped.
func (r *GoGitRepository) branchHeads() ([]plumbing.Hash, error) {
	refs, err := r.repo.References()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list references: %w", domain.ErrRepositoryLoad, err)
	}
	defer refs.Close()

	seen := make(map[plumbing.Hash]bool)
	var heads []plumbing.Hash
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		if !ref.Name().IsBranch() && !ref.Name().IsRemote() {
			return nil
		}
		if !seen[ref.Hash()] {
			seen[ref.Hash()] = true
			heads = append(heads, ref.Hash())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to iterate references: %w", domain.ErrRepositoryLoad, err)
	}
	return heads, nil
}

func toDomainCommit(c *object.Commit) domain.Commit {
	parents := make([]string, len(c.ParentHashes))
	for i, p := range c.ParentHashes {
		parents[i] = p.String()
	}
	return domain.Commit{
		ID:        c.Hash.String(),
		ParentIDs: parents,
		Author:    fmt.Sprintf("%s <%s>", c.Author.Name, c.Author.Email),
		Committer: fmt.Sprintf("%s <%s>", c.Committer.Name, c.Committer.Email),
		Time:      c.Committer.When,
		Message:   c.Message,
	}
}

// Loader opens a local path or clones a remote URL on demand.
// Clones go to a temporary directory that is removed once the commits are read.
type Loader struct {
	location string
	workDir  string
	token    string
	logger   Logger
}

// NewLoader creates a loader for location. workDir is the parent directory for
// temporary clones; an empty value uses the system temp directory.
func NewLoader(location, workDir, token string, log Logger) *Loader {
	return &Loader{
		location: location,
		workDir:  workDir,
		token:    token,
		logger:   log,
	}
}

// Location implements domain.RepositoryLoader.
func (l *Loader) Location() string {
	return l.location
}

// Load implements domain.RepositoryLoader.
func (l *Loader) Load(ctx context.Context) (*domain.Repository, error) {
	if !IsRemoteURL(l.location) {
		repo, err := Open(l.location, l.logger)
		if err != nil {
			return nil, err
		}
		return repo.Load(ctx)
	}

	dir, err := os.MkdirTemp(l.workDir, "cherry-harvest-*")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create clone directory: %w", domain.ErrRepositoryLoad, err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			l.logger.Warn(ctx, "failed to remove clone directory", map[string]interface{}{
				"dir":   dir,
				"error": rmErr.Error(),
			})
		}
	}()

	repo, err := Clone(ctx, l.location, dir, l.token, l.logger)
	if err != nil {
		return nil, err
	}
	return repo.Load(ctx)
}

// Regular expressions for parsing Git remote URLs.
var (
	// httpsURLPattern matches HTTPS URLs like:
	// https://github.com/owner/repo.git
	// https://github.com/owner/repo
	httpsURLPattern = regexp.MustCompile(`^https?://[^/]+/([^/]+)/([^/]+?)(?:\.git)?/?$`)

	// sshURLPattern matches SSH URLs like:
	// git@github.com:owner/repo.git
	// git@github.com:owner/repo
	sshURLPattern = regexp.MustCompile(`^git@[^:]+:([^/]+)/([^/]+?)(?:\.git)?$`)

	// shortNamePattern matches owner/repo.
	shortNamePattern = regexp.MustCompile(`^([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+)$`)
)

// IsRemoteURL reports whether location must be cloned rather than opened.
func IsRemoteURL(location string) bool {
	location = strings.TrimSpace(location)
	return strings.HasPrefix(location, "https://") ||
		strings.HasPrefix(location, "http://") ||
		strings.HasPrefix(location, "git@") ||
		strings.HasPrefix(location, "ssh://") ||
		strings.HasPrefix(location, "git://")
}

// ParseRepoFromURL extracts owner/repo from a Git remote URL or an owner/repo string.
// Supports both HTTPS and SSH formats:
//   - https://github.com/owner/repo.git -> owner/repo
//   - https://github.com/owner/repo -> owner/repo
//   - git@github.com:owner/repo.git -> owner/repo
//   - owner/repo -> owner/repo
func ParseRepoFromURL(url string) (string, error) {
	url = strings.TrimSpace(url)

	// Try HTTPS pattern first
	if matches := httpsURLPattern.FindStringSubmatch(url); len(matches) == 3 {
		return matches[1] + "/" + matches[2], nil
	}

	// Try SSH pattern
	if matches := sshURLPattern.FindStringSubmatch(url); len(matches) == 3 {
		return matches[1] + "/" + matches[2], nil
	}

	if matches := shortNamePattern.FindStringSubmatch(url); len(matches) == 3 {
		return matches[1] + "/" + matches[2], nil
	}

	return "", fmt.Errorf("%w: unrecognized URL format: %s", domain.ErrInvalidRepositoryName, url)
}
